package processor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/rezonia/fiscal-xml/internal/model"
)

// Input is one named document of a batch
type Input struct {
	Name string
	Data []byte
}

// Result is the outcome of one batch input
type Result struct {
	Name     string          `json:"name"`
	Document *model.Document `json:"document,omitempty"`
	Err      error           `json:"-"`
	Error    string          `json:"error,omitempty"`
}

// BatchOptions selects the optional steps of ProcessBatch
type BatchOptions struct {
	Recalculate bool
}

// ProcessBatch processes inputs on a bounded pool. Results keep the order of
// inputs; a failing input does not stop the others.
func (p *Processor) ProcessBatch(ctx context.Context, inputs []Input, opts BatchOptions) []Result {
	results := make([]Result, len(inputs))
	p.each(ctx, len(inputs), func(ctx context.Context, i int) {
		res := Result{Name: inputs[i].Name}
		doc, err := p.Process(ctx, inputs[i].Data)
		if err == nil && opts.Recalculate {
			err = p.RecalculateTaxes(ctx, doc)
		}
		if err != nil {
			res.Err = err
			res.Error = err.Error()
		} else {
			res.Document = doc
		}
		results[i] = res
	})
	return results
}

// SummarizeBatch summarizes inputs on a bounded pool, in input order
func (p *Processor) SummarizeBatch(ctx context.Context, inputs []Input) []model.Summary {
	summaries := make([]model.Summary, len(inputs))
	p.each(ctx, len(inputs), func(_ context.Context, i int) {
		s := p.Summarize(inputs[i].Data)
		s.FileName = inputs[i].Name
		summaries[i] = s
	})
	return summaries
}

// each runs fn for 0..n-1 with at most p.workers calls in flight. Once ctx is
// done, remaining indexes still run so every slot gets a result.
func (p *Processor) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}
