package nfe

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// fields reads scalar values below one element. Required reads fail with a
// FieldExtractionError; optional reads fall back to a default and record a
// warning when a present value cannot be parsed.
type fields struct {
	el     *etree.Element
	prefix string // path of el, used in error and warning messages
	item   int
	doc    *model.Document
	log    *zap.Logger
}

func (f fields) name(path string) string {
	if f.prefix == "" {
		return path
	}
	return f.prefix + "/" + path
}

func (f fields) requireText(path string) (string, error) {
	s, ok := xmldoc.Text(f.el, path)
	if !ok || s == "" {
		return "", model.NewFieldExtractionError(f.name(path), f.item, "required field missing", nil)
	}
	return s, nil
}

func (f fields) optionalText(path string) string {
	s, _ := xmldoc.Text(f.el, path)
	return s
}

func (f fields) requireDecimal(path string) (decimal.Decimal, error) {
	s, err := f.requireText(path)
	if err != nil {
		return dec.Zero, err
	}
	d, err := dec.FromString(s)
	if err != nil {
		return dec.Zero, model.NewFieldExtractionError(f.name(path), f.item, fmt.Sprintf("not a decimal: %q", s), err)
	}
	return d, nil
}

func (f fields) optionalDecimal(path string) decimal.Decimal {
	s, ok := xmldoc.Text(f.el, path)
	if !ok || s == "" {
		return dec.Zero
	}
	d, err := dec.FromString(s)
	if err != nil {
		f.warn(fmt.Sprintf("%s: ignoring unparsable value %q", f.name(path), s))
		return dec.Zero
	}
	return d
}

// triple reads a vBC/p<tax>/v<tax> group, e.g. ICMS00 or PISAliq
func (f fields) triple(tax string) model.TaxTriple {
	return model.TaxTriple{
		Base:  f.optionalDecimal("vBC"),
		Rate:  f.optionalDecimal("p" + tax),
		Value: f.optionalDecimal("v" + tax),
	}
}

func (f fields) warn(msg string) {
	if f.item > 0 {
		msg = fmt.Sprintf("item %d: %s", f.item, msg)
	}
	f.doc.AddWarning(msg)
	f.log.Warn(msg, zap.String("document_key", f.doc.Key.String()), zap.Int("item", f.item))
}

// sub returns a reader over the child at path; the element may be nil
func (f fields) sub(path string) fields {
	var el *etree.Element
	if f.el != nil {
		el = f.el.FindElement(path)
	}
	return fields{el: el, prefix: f.name(path), item: f.item, doc: f.doc, log: f.log}
}

// first returns a reader over the first child of the element, e.g. ICMS00 below ICMS
func (f fields) first() fields {
	el := xmldoc.FirstChild(f.el)
	prefix := f.prefix
	if el != nil {
		prefix = f.name(el.Tag)
	}
	return fields{el: el, prefix: prefix, item: f.item, doc: f.doc, log: f.log}
}
