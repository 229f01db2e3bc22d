package generator

import (
	"github.com/beevik/etree"
	"go.uber.org/zap"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
	"github.com/rezonia/fiscal-xml/internal/model"
)

// TaxNodeStrategy writes the IBS, CBS and Selective Tax figures of a document
// into the infNFe tree. Strategies are registered per layout version so a new
// layout can add its own nodes without touching the overwrite logic.
type TaxNodeStrategy interface {
	Apply(inf *etree.Element, doc *model.Document) error
}

// StrategyFunc adapts a function to TaxNodeStrategy
type StrategyFunc func(inf *etree.Element, doc *model.Document) error

func (f StrategyFunc) Apply(inf *etree.Element, doc *model.Document) error {
	return f(inf, doc)
}

// logOnly is the 4.00 strategy. The 4.00 layout has no IBS/CBS/IS groups, so
// the figures are logged and the tree is left as is.
type logOnly struct {
	log *zap.Logger
}

func (s logOnly) Apply(_ *etree.Element, doc *model.Document) error {
	for _, item := range doc.Items {
		s.log.Debug("consumption taxes not written to layout",
			zap.String("document_key", doc.Key.String()),
			zap.Int("item", item.Number),
			zap.String("ibs", dec.Fixed2(item.Taxes.IBS.Value)),
			zap.String("cbs", dec.Fixed2(item.Taxes.CBS.Value)),
			zap.String("selective", dec.Fixed2(item.Taxes.Selective.Value)),
			zap.Bool("selective_fallback", item.Taxes.SelectiveFallback),
		)
	}
	s.log.Info("consumption taxes computed",
		zap.String("document_key", doc.Key.String()),
		zap.String("layout_version", doc.LayoutVersion),
		zap.String("ibs", dec.Fixed2(doc.Taxes.IBS.Value)),
		zap.String("cbs", dec.Fixed2(doc.Taxes.CBS.Value)),
		zap.String("selective", dec.Fixed2(doc.Taxes.Selective.Value)),
		zap.Bool("selective_fallback", doc.Taxes.SelectiveFallback),
	)
	return nil
}
