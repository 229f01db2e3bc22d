// Package generator produces updated NF-e XML from a parsed Document.
//
// Every call starts again from the document's original bytes, so repeated
// updates never compound. Only existing tax leaves are rewritten; the rest
// of the tree, including any signature, is serialized as it was read.
package generator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// Generator rewrites the tax leaves of a document's original XML
type Generator struct {
	log        *zap.Logger
	strategies map[string]TaxNodeStrategy
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// WithStrategy registers the node insertion strategy for a layout version,
// replacing any previous one
func WithStrategy(version string, s TaxNodeStrategy) Option {
	return func(g *Generator) {
		g.strategies[version] = s
	}
}

// New creates a Generator with the log-only strategy for layout 4.00
func New(opts ...Option) *Generator {
	g := &Generator{
		log:        zap.NewNop(),
		strategies: make(map[string]TaxNodeStrategy),
	}
	for _, opt := range opts {
		opt(g)
	}
	if _, ok := g.strategies["4.00"]; !ok {
		g.strategies["4.00"] = logOnly{log: g.log}
	}
	return g
}

// Update returns the original XML of doc with its ICMS, PIS, COFINS and IPI
// figures replaced by the values currently held in doc
func (g *Generator) Update(doc *model.Document) (string, error) {
	key := doc.Key.String()

	tree, err := xmldoc.Read(doc.OriginalXML())
	if err != nil {
		return "", model.NewGenerationError(key, "re-read original XML", err)
	}
	inf := xmldoc.InfNFe(tree)
	if inf == nil {
		return "", model.NewGenerationError(key, "infNFe not found", nil)
	}

	dets := make(map[int]*etree.Element)
	for _, det := range inf.SelectElements("det") {
		if n, err := strconv.Atoi(strings.TrimSpace(det.SelectAttrValue("nItem", ""))); err == nil {
			dets[n] = det
		}
	}

	for i := range doc.Items {
		item := &doc.Items[i]
		det, ok := dets[item.Number]
		if !ok {
			return "", model.NewGenerationError(key, fmt.Sprintf("det nItem=%d not found", item.Number), nil)
		}
		imposto := det.SelectElement("imposto")
		if imposto == nil {
			continue
		}
		overwriteTriple(imposto, "ICMS", item.Taxes.ICMS)
		overwriteTriple(imposto, "PIS", item.Taxes.PIS)
		overwriteTriple(imposto, "COFINS", item.Taxes.COFINS)
	}

	tot := inf.FindElement("total/ICMSTot")
	if tot == nil {
		return "", model.NewGenerationError(key, "total/ICMSTot not found", nil)
	}
	setLeaf(tot, "vICMS", doc.Taxes.ICMS.Value)
	setLeaf(tot, "vPIS", doc.Taxes.PIS.Value)
	setLeaf(tot, "vCOFINS", doc.Taxes.COFINS.Value)
	setLeaf(tot, "vIPI", doc.Taxes.IPI.Value)

	if s, ok := g.strategies[doc.LayoutVersion]; ok {
		if err := s.Apply(inf, doc); err != nil {
			return "", model.NewGenerationError(key, "insert consumption tax nodes", err)
		}
	} else {
		g.log.Warn("no tax node strategy for layout",
			zap.String("document_key", key),
			zap.String("layout_version", doc.LayoutVersion),
		)
	}

	out, err := xmldoc.Write(tree)
	if err != nil {
		return "", model.NewGenerationError(key, "serialize", err)
	}
	return out, nil
}

// overwriteTriple rewrites vBC, p<tax> and v<tax> in the first group below
// imposto/<tax> (ICMS00, PISAliq, ...). Missing leaves are not created.
func overwriteTriple(imposto *etree.Element, tax string, t model.TaxTriple) {
	group := xmldoc.FirstChild(imposto.SelectElement(tax))
	if group == nil {
		return
	}
	setLeaf(group, "vBC", t.Base)
	setLeaf(group, "p"+tax, t.Rate)
	setLeaf(group, "v"+tax, t.Value)
}

func setLeaf(parent *etree.Element, tag string, v decimal.Decimal) {
	if el := parent.SelectElement(tag); el != nil {
		el.SetText(dec.Fixed2(v))
	}
}
