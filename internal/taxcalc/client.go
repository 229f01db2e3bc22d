// Package taxcalc is the client of the IBS/CBS and Selective Tax calculation service.
package taxcalc

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/model"
)

const (
	DefaultBaseURL      = "https://piloto-cbs.tributos.gov.br/servico/calculadora-consumo/api"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxAttempts  = 3
	DefaultBackoffUnit  = time.Second
	DefaultItemWorkers  = 4
	DefaultProductClass = "default"
	DefaultUserAgent    = "fiscal-xml"
)

// Operation names, used in errors, logs and metrics
const (
	OpConsumption = "ibs-cbs"
	OpSelective   = "imposto-seletivo"
)

const (
	pathConsumption = "/calculo/ibs-cbs"
	pathSelective   = "/calculo/imposto-seletivo"
)

// Client calls the tax calculation service, retrying transient failures
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	maxAttempts  int
	backoffUnit  time.Duration
	itemWorkers  int
	productClass string
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	cache        Cache
	cacheTTL     time.Duration
	log          *zap.Logger
	metrics      *metrics.Metrics
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithTimeout sets the per-attempt HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMaxAttempts sets how many times a call is tried before giving up
func WithMaxAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoffUnit sets the unit of the 2^attempt wait between attempts
func WithBackoffUnit(d time.Duration) ClientOption {
	return func(c *Client) {
		c.backoffUnit = d
	}
}

// WithItemWorkers bounds concurrent item calls in CalculateDocumentTaxes
func WithItemWorkers(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.itemWorkers = n
		}
	}
}

// WithProductClass sets the product class sent to the Selective Tax endpoint
// by CalculateDocumentTaxes
func WithProductClass(class string) ClientOption {
	return func(c *Client) {
		if class != "" {
			c.productClass = class
		}
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithCache enables result caching for successful responses
func WithCache(cache Cache, ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a tax calculation client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		userAgent:    DefaultUserAgent,
		maxAttempts:  DefaultMaxAttempts,
		backoffUnit:  DefaultBackoffUnit,
		itemWorkers:  DefaultItemWorkers,
		productClass: DefaultProductClass,
		sleep:        sleepContext,
		now:          time.Now,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type consumptionRequest struct {
	NCM           string `json:"ncm"`
	CFOP          string `json:"cfop"`
	BaseValue     string `json:"valorBase"`
	OriginState   string `json:"ufOrigem"`
	DestState     string `json:"ufDestino"`
	OperationDate string `json:"dataOperacao"`
}

type consumptionResponse struct {
	IBSRate  decimal.Decimal `json:"aliquotaIBS"`
	IBSValue decimal.Decimal `json:"valorIBS"`
	CBSRate  decimal.Decimal `json:"aliquotaCBS"`
	CBSValue decimal.Decimal `json:"valorCBS"`
}

type selectiveRequest struct {
	NCM           string `json:"ncm"`
	BaseValue     string `json:"valorBase"`
	ProductClass  string `json:"tipoProduto"`
	OperationDate string `json:"dataOperacao"`
}

type selectiveResponse struct {
	Rate  *decimal.Decimal `json:"aliquotaImpostoSeletivo,omitempty"`
	Value decimal.Decimal  `json:"valorImpostoSeletivo"`
}

// CalculateConsumptionTaxes returns a breakdown with IBS and CBS populated for
// one item. Values are derived locally as round(base*rate/100, 2) from the
// rates the service reports.
func (c *Client) CalculateConsumptionTaxes(ctx context.Context, ncm, cfop string, base decimal.Decimal, originState, destState string) (model.TaxBreakdown, error) {
	req := consumptionRequest{
		NCM:           ncm,
		CFOP:          cfop,
		BaseValue:     base.StringFixed(2),
		OriginState:   originState,
		DestState:     destState,
		OperationDate: c.operationDate(),
	}

	var resp consumptionResponse
	if err := c.call(ctx, OpConsumption, pathConsumption, req, &resp); err != nil {
		return model.TaxBreakdown{}, err
	}

	b := model.TaxBreakdown{
		IBS: model.NewTaxTriple(base, resp.IBSRate),
		CBS: model.NewTaxTriple(base, resp.CBSRate),
	}
	c.checkReported(ncm, "ibs", b.IBS.Value, resp.IBSValue)
	c.checkReported(ncm, "cbs", b.CBS.Value, resp.CBSValue)
	b.RecomputeFederal()
	return b, nil
}

// SelectiveResult is the outcome of a Selective Tax calculation. Fallback is
// set when the call failed and Triple is an assumed zero, not a confirmed one.
type SelectiveResult struct {
	Triple   model.TaxTriple
	Fallback bool
	Cause    error
}

// Value returns the selective tax value
func (r SelectiveResult) Value() decimal.Decimal {
	return r.Triple.Value
}

// CalculateSelectiveTax never fails: any error yields a zero value with
// Fallback set, logged and counted. When the service reports a rate the value
// is derived from it; otherwise the reported value is kept as is.
func (c *Client) CalculateSelectiveTax(ctx context.Context, ncm string, base decimal.Decimal, productClass string) SelectiveResult {
	if productClass == "" {
		productClass = DefaultProductClass
	}
	req := selectiveRequest{
		NCM:           ncm,
		BaseValue:     base.StringFixed(2),
		ProductClass:  productClass,
		OperationDate: c.operationDate(),
	}

	var resp selectiveResponse
	if err := c.call(ctx, OpSelective, pathSelective, req, &resp); err != nil {
		c.log.Warn("selective tax unavailable, assuming zero",
			zap.String("ncm", ncm),
			zap.String("base", base.StringFixed(2)),
			zap.Bool("selective_fallback", true),
			zap.Error(err),
		)
		c.metrics.IncSelectiveFallback()
		return SelectiveResult{
			Triple:   model.TaxTriple{Base: base},
			Fallback: true,
			Cause:    err,
		}
	}

	if resp.Rate != nil {
		t := model.NewTaxTriple(base, *resp.Rate)
		c.checkReported(ncm, "selective", t.Value, resp.Value)
		return SelectiveResult{Triple: t}
	}
	return SelectiveResult{Triple: model.TaxTriple{Base: base, Value: resp.Value.Round(2)}}
}

func (c *Client) checkReported(ncm, tax string, computed, reported decimal.Decimal) {
	if !computed.Equal(reported.Round(2)) {
		c.log.Warn("service value differs from base*rate/100",
			zap.String("ncm", ncm),
			zap.String("tax", tax),
			zap.String("computed", computed.StringFixed(2)),
			zap.String("reported", reported.String()),
		)
	}
}

func (c *Client) operationDate() string {
	return c.now().UTC().Format("2006-01-02")
}
