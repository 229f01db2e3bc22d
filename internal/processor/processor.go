// Package processor orchestrates parsing, tax recalculation and XML
// regeneration of NF-e documents.
package processor

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/generator"
	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/parser/nfe"
	sigxml "github.com/rezonia/fiscal-xml/internal/signature/xml"
)

// DefaultWorkers bounds concurrent documents in batch operations
const DefaultWorkers = 10

// Operation labels for metrics and logs
const (
	OpProcess     = "process"
	OpRecalculate = "recalculate"
	OpSummary     = "summary"
)

// Warning added when regeneration changes a signed document
const WarnSignatureStale = "document is signed; updated XML is no longer covered by its signature"

// Warning added when some Selective Tax figures are assumed zero
const WarnSelectiveFallback = "selective tax unavailable for some items; assumed zero"

// ErrNoTaxClient is returned by RecalculateTaxes when no tax client is configured
var ErrNoTaxClient = errors.New("tax client not configured")

// TaxCalculator computes IBS, CBS and Selective Tax for the items of a document
type TaxCalculator interface {
	CalculateDocumentTaxes(ctx context.Context, items []model.LineItem, originState, destState string) ([]model.TaxBreakdown, model.TaxBreakdown, error)
}

// Processor runs the document pipeline
type Processor struct {
	parser    *nfe.Parser
	generator *generator.Generator
	taxes     TaxCalculator
	extractor *sigxml.Extractor
	log       *zap.Logger
	metrics   *metrics.Metrics
	workers   int
	genOpts   []generator.Option
}

// Option configures a Processor
type Option func(*Processor)

// WithTaxClient sets the tax calculator used by RecalculateTaxes
func WithTaxClient(tc TaxCalculator) Option {
	return func(p *Processor) {
		p.taxes = tc
	}
}

// WithLogger sets the logger for the processor and its parser and generator
func WithLogger(log *zap.Logger) Option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithWorkers sets the batch pool size
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithGeneratorOptions passes options to the XML generator
func WithGeneratorOptions(opts ...generator.Option) Option {
	return func(p *Processor) {
		p.genOpts = append(p.genOpts, opts...)
	}
}

// New creates a Processor
func New(opts ...Option) *Processor {
	p := &Processor{
		log:       zap.NewNop(),
		workers:   DefaultWorkers,
		extractor: sigxml.NewExtractor(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.parser = nfe.New(nfe.WithLogger(p.log))
	p.generator = generator.New(append([]generator.Option{generator.WithLogger(p.log)}, p.genOpts...)...)
	return p
}

// Process parses raw and regenerates its XML from the parsed state. The tax
// calculation service is not called; use RecalculateTaxes for that.
func (p *Processor) Process(ctx context.Context, raw []byte) (*model.Document, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := p.parser.Parse(raw)
	if err != nil {
		p.fail(OpProcess, start, "", err)
		return nil, err
	}
	if err := p.regenerate(doc); err != nil {
		p.fail(OpProcess, start, doc.Key.String(), err)
		return nil, err
	}

	p.metrics.ObserveDocument(OpProcess, metrics.OutcomeOK, time.Since(start))
	p.log.Info("document processed",
		zap.String("document_key", doc.Key.String()),
		zap.Int("items", len(doc.Items)),
		zap.Int("warnings", len(doc.Warnings)),
	)
	return doc, nil
}

// RecalculateTaxes asks the tax service for IBS, CBS and Selective Tax of
// every item, merges the results into doc and regenerates UpdatedXML.
// When the service fails doc is left unchanged.
func (p *Processor) RecalculateTaxes(ctx context.Context, doc *model.Document) error {
	start := time.Now()
	key := doc.Key.String()
	if p.taxes == nil {
		p.fail(OpRecalculate, start, key, ErrNoTaxClient)
		return ErrNoTaxClient
	}

	origin := doc.Emitter.State
	dest := doc.Recipient.State
	if dest == "" {
		dest = origin
	}

	perItem, total, err := p.taxes.CalculateDocumentTaxes(ctx, doc.Items, origin, dest)
	if err != nil {
		p.fail(OpRecalculate, start, key, err)
		return err
	}

	for i := range doc.Items {
		t := &doc.Items[i].Taxes
		t.IBS = perItem[i].IBS
		t.CBS = perItem[i].CBS
		t.Selective = perItem[i].Selective
		t.SelectiveFallback = perItem[i].SelectiveFallback
		t.RecomputeFederal()
	}
	doc.Taxes.IBS = total.IBS
	doc.Taxes.CBS = total.CBS
	doc.Taxes.Selective = total.Selective
	doc.Taxes.SelectiveFallback = total.SelectiveFallback
	doc.Taxes.RecomputeFederal()
	if total.SelectiveFallback {
		addWarningOnce(doc, WarnSelectiveFallback)
	}

	if err := p.regenerate(doc); err != nil {
		p.fail(OpRecalculate, start, key, err)
		return err
	}

	p.metrics.ObserveDocument(OpRecalculate, metrics.OutcomeOK, time.Since(start))
	p.log.Info("document taxes recalculated",
		zap.String("document_key", key),
		zap.String("total_federal", doc.Taxes.TotalFederalTaxes.StringFixed(2)),
		zap.Bool("selective_fallback", doc.Taxes.SelectiveFallback),
	)
	return nil
}

func (p *Processor) regenerate(doc *model.Document) error {
	updated, err := p.generator.Update(doc)
	if err != nil {
		return err
	}
	doc.UpdatedXML = updated

	original := doc.OriginalXML()
	if updated != string(original) && p.extractor.CanExtract(original) {
		addWarningOnce(doc, WarnSignatureStale)
	}
	return nil
}

func (p *Processor) fail(op string, start time.Time, key string, err error) {
	p.metrics.ObserveDocument(op, metrics.OutcomeError, time.Since(start))
	p.log.Warn("document operation failed",
		zap.String("operation", op),
		zap.String("document_key", key),
		zap.Error(err),
	)
}

func addWarningOnce(doc *model.Document, msg string) {
	if !slices.Contains(doc.Warnings, msg) {
		doc.AddWarning(msg)
	}
}
