package fiscalxml

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/processor"
	"github.com/rezonia/fiscal-xml/internal/signature/trust"
	sigxml "github.com/rezonia/fiscal-xml/internal/signature/xml"
	"github.com/rezonia/fiscal-xml/internal/taxcalc"
	"github.com/rezonia/fiscal-xml/internal/validator"
)

// Options configures a Processor
type Options struct {
	// Tax calculation service
	TaxAPIURL     string        // Base URL (env: TAX_API_URL)
	TaxAPITimeout time.Duration // Per-attempt timeout
	MaxAttempts   int           // Attempts per call, including the first
	ProductClass  string        // Product class sent to the Selective Tax endpoint

	// Feature flags
	EnableTaxAPI bool

	// Concurrency
	Workers int // Documents processed at once by batch calls

	// TrustedRootsPEM holds the PEM roots used to check signer chains.
	// When empty the chain is not checked.
	TrustedRootsPEM []byte

	Logger *zap.Logger
}

// DefaultOptions returns default processor options
func DefaultOptions() Options {
	return Options{
		TaxAPIURL:     taxcalc.DefaultBaseURL,
		TaxAPITimeout: taxcalc.DefaultTimeout,
		MaxAttempts:   taxcalc.DefaultMaxAttempts,
		ProductClass:  taxcalc.DefaultProductClass,
		EnableTaxAPI:  true,
		Workers:       processor.DefaultWorkers,
	}
}

// Input is one named document of a batch
type Input = processor.Input

// Result is the outcome of one batch input
type Result = processor.Result

// Processor wraps the internal pipeline
type Processor struct {
	inner    *processor.Processor
	verifier *sigxml.Verifier
	options  Options
}

// NewProcessor creates a new processor with the given options. It fails
// only when TrustedRootsPEM cannot be parsed.
func NewProcessor(opts Options) (*Processor, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	store := trust.NewStore()
	if len(opts.TrustedRootsPEM) > 0 {
		if _, err := store.AddCertificatesFromPEM(opts.TrustedRootsPEM); err != nil {
			return nil, err
		}
	}

	procOpts := []processor.Option{
		processor.WithLogger(log),
		processor.WithWorkers(opts.Workers),
	}
	if opts.EnableTaxAPI {
		var clientOpts []taxcalc.ClientOption
		if opts.TaxAPIURL != "" {
			clientOpts = append(clientOpts, taxcalc.WithBaseURL(opts.TaxAPIURL))
		}
		if opts.TaxAPITimeout > 0 {
			clientOpts = append(clientOpts, taxcalc.WithTimeout(opts.TaxAPITimeout))
		}
		if opts.MaxAttempts > 0 {
			clientOpts = append(clientOpts, taxcalc.WithMaxAttempts(opts.MaxAttempts))
		}
		if opts.ProductClass != "" {
			clientOpts = append(clientOpts, taxcalc.WithProductClass(opts.ProductClass))
		}
		clientOpts = append(clientOpts, taxcalc.WithLogger(log))
		procOpts = append(procOpts, processor.WithTaxClient(taxcalc.NewClient(clientOpts...)))
	}

	return &Processor{
		inner:    processor.New(procOpts...),
		verifier: sigxml.NewVerifier(store, sigxml.WithLogger(log)),
		options:  opts,
	}, nil
}

// NewDefaultProcessor creates a processor with default options
func NewDefaultProcessor() *Processor {
	p, _ := NewProcessor(DefaultOptions())
	return p
}

// Process parses the document and regenerates its XML without calling the
// tax service
func (p *Processor) Process(ctx context.Context, r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewStructuralValidationError("failed to read input", err)
	}
	return p.inner.Process(ctx, data)
}

// Recalculate parses the document, recalculates IBS, CBS and Selective Tax
// through the tax service and regenerates the XML
func (p *Processor) Recalculate(ctx context.Context, r io.Reader) (*Document, error) {
	doc, err := p.Process(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := p.inner.RecalculateTaxes(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ProcessBatch processes inputs concurrently. Results keep input order.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []Input, recalculate bool) []Result {
	return p.inner.ProcessBatch(ctx, inputs, processor.BatchOptions{Recalculate: recalculate})
}

// Summarize returns a quick summary; it never fails
func (p *Processor) Summarize(data []byte) Summary {
	return p.inner.Summarize(data)
}

// Review returns data-quality warnings for a parsed document
func (p *Processor) Review(doc *Document) []string {
	return processor.Review(doc)
}

// Verify checks the digital signature of a signed document
func (p *Processor) Verify(ctx context.Context, data []byte) (*VerificationResult, error) {
	return p.verifier.Verify(ctx, data)
}

// Validate reports whether data has the mandatory NF-e structure. The
// returned error is a *StructuralValidationError.
func Validate(data []byte) error {
	return validator.CheckStructure(data)
}

// ValidateDocumentKey validates a 44-digit access key
func ValidateDocumentKey(key string) error {
	return validator.CheckDocumentKey(key)
}

// ValidateCNPJ checks the check digits of a CNPJ
func ValidateCNPJ(id string) bool {
	return validator.ValidateTaxID(id)
}

// ValidateCPF checks the check digits of a CPF
func ValidateCPF(id string) bool {
	return validator.ValidateCPF(id)
}
