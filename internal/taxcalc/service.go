package taxcalc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rezonia/fiscal-xml/internal/model"
)

// CalculateDocumentTaxes computes IBS, CBS and Selective Tax for every item.
// Items are calculated concurrently; the per-item results keep the order of
// items. The aggregate sums the three values and their total.
func (c *Client) CalculateDocumentTaxes(ctx context.Context, items []model.LineItem, originState, destState string) ([]model.TaxBreakdown, model.TaxBreakdown, error) {
	perItem := make([]model.TaxBreakdown, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.itemWorkers)
	for i, item := range items {
		g.Go(func() error {
			b, err := c.CalculateConsumptionTaxes(gctx, item.NCM, item.CFOP, item.TotalValue, originState, destState)
			if err != nil {
				return fmt.Errorf("item %d: %w", item.Number, err)
			}
			sel := c.CalculateSelectiveTax(gctx, item.NCM, item.TotalValue, c.productClass)
			b.Selective = sel.Triple
			b.SelectiveFallback = sel.Fallback
			b.RecomputeFederal()
			perItem[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Error("document tax calculation failed", zap.Int("items", len(items)), zap.Error(err))
		return nil, model.TaxBreakdown{}, err
	}

	var total model.TaxBreakdown
	for _, b := range perItem {
		total.IBS.Base = total.IBS.Base.Add(b.IBS.Base)
		total.IBS.Value = total.IBS.Value.Add(b.IBS.Value)
		total.CBS.Base = total.CBS.Base.Add(b.CBS.Base)
		total.CBS.Value = total.CBS.Value.Add(b.CBS.Value)
		total.Selective.Base = total.Selective.Base.Add(b.Selective.Base)
		total.Selective.Value = total.Selective.Value.Add(b.Selective.Value)
		total.SelectiveFallback = total.SelectiveFallback || b.SelectiveFallback
	}
	total.RecomputeFederal()

	c.log.Info("document taxes calculated",
		zap.Int("items", len(items)),
		zap.String("ibs", total.IBS.Value.StringFixed(2)),
		zap.String("cbs", total.CBS.Value.StringFixed(2)),
		zap.String("selective", total.Selective.Value.StringFixed(2)),
		zap.String("total_federal", total.TotalFederalTaxes.StringFixed(2)),
		zap.Bool("selective_fallback", total.SelectiveFallback),
	)
	return perItem, total, nil
}
