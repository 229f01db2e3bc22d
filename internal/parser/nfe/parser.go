// Package nfe converts NF-e XML into model.Document values.
package nfe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/validator"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// Accepted dhEmi layouts. RFC3339 covers both an explicit offset and a "Z" suffix.
var issueTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

const legacyDateFormat = "2006-01-02"

// Parser builds Documents from NF-e XML
type Parser struct {
	log *zap.Logger
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger used for skipped items and defaulted fields
func WithLogger(log *zap.Logger) Option {
	return func(p *Parser) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Parser
func New(opts ...Option) *Parser {
	p := &Parser{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse validates raw and extracts a Document from it. Line items without a
// prod block are skipped and reported in Document.Skipped and Warnings.
func (p *Parser) Parse(raw []byte) (*model.Document, error) {
	tree, err := xmldoc.Read(raw)
	if err != nil {
		return nil, model.NewStructuralValidationError("malformed XML", err)
	}
	if err := validator.CheckTree(tree); err != nil {
		return nil, err
	}

	inf := xmldoc.InfNFe(tree)
	doc := model.NewDocument(raw)
	doc.LayoutVersion = inf.SelectAttrValue("versao", "")

	key := strings.TrimPrefix(inf.SelectAttrValue("Id", ""), "NFe")
	if err := validator.CheckDocumentKey(key); err != nil {
		return nil, err
	}
	doc.Key = model.DocumentKey(key)

	log := p.log.With(zap.String("document_key", key))
	root := fields{el: inf, doc: doc, log: log}

	if err := p.parseIdentification(root.sub("ide"), doc); err != nil {
		return nil, err
	}

	emitter, err := p.parseParty(root.sub("emit"), "enderEmit", true)
	if err != nil {
		return nil, err
	}
	doc.Emitter = emitter

	recipient, err := p.parseParty(root.sub("dest"), "enderDest", false)
	if err != nil {
		return nil, err
	}
	doc.Recipient = recipient

	if err := p.parseItems(inf, doc, log); err != nil {
		return nil, err
	}

	if err := p.parseTotals(root.sub("total/ICMSTot"), doc); err != nil {
		return nil, err
	}

	log.Debug("document parsed",
		zap.String("series", doc.Series),
		zap.String("number", doc.Number),
		zap.Int("items", len(doc.Items)),
		zap.Int("skipped", len(doc.Skipped)),
	)
	return doc, nil
}

func (p *Parser) parseIdentification(ide fields, doc *model.Document) error {
	var err error
	if doc.Series, err = ide.requireText("serie"); err != nil {
		return err
	}
	if doc.Number, err = ide.requireText("nNF"); err != nil {
		return err
	}
	if doc.IssuedAt, err = parseIssueDate(ide); err != nil {
		return err
	}

	doc.NatureOfOperation = ide.optionalText("natOp")
	if mod := ide.optionalText("mod"); mod != "" {
		doc.Type = model.DocumentTypeFromModel(mod)
	} else {
		doc.Type = model.DocumentTypeFromModel(doc.Key.Model())
	}
	return nil
}

// parseIssueDate reads dhEmi, falling back to the date-only dEmi of older layouts
func parseIssueDate(ide fields) (time.Time, error) {
	if s := ide.optionalText("dhEmi"); s != "" {
		for _, layout := range issueTimeFormats {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		_, err := time.Parse(time.RFC3339, s)
		return time.Time{}, model.NewDateParseError(ide.name("dhEmi"), s, err)
	}

	if s := ide.optionalText("dEmi"); s != "" {
		t, err := time.Parse(legacyDateFormat, s)
		if err != nil {
			return time.Time{}, model.NewDateParseError(ide.name("dEmi"), s, err)
		}
		return t, nil
	}

	return time.Time{}, model.NewFieldExtractionError(ide.name("dhEmi"), 0, "required field missing", nil)
}

// parseParty reads emit or dest. addressTag is the role specific address
// block; the generic "endereco" block is used when it is absent.
func (p *Parser) parseParty(f fields, addressTag string, requireTaxID bool) (model.Party, error) {
	party := model.Party{
		TaxID:     f.optionalText("CNPJ"),
		Name:      f.optionalText("xNome"),
		TradeName: f.optionalText("xFant"),
		Email:     f.optionalText("email"),
	}
	if party.TaxID == "" {
		party.TaxID = f.optionalText("CPF")
	}

	switch {
	case party.TaxID == "" && requireTaxID:
		return party, model.NewFieldExtractionError(f.name("CNPJ"), 0, "required field missing (CNPJ or CPF)", nil)
	case len(party.TaxID) == 14 && !validator.ValidateTaxID(party.TaxID):
		f.warn(fmt.Sprintf("%s: CNPJ %s has invalid check digits", f.prefix, party.TaxID))
	case len(party.TaxID) == 11 && !validator.ValidateCPF(party.TaxID):
		f.warn(fmt.Sprintf("%s: CPF %s has invalid check digits", f.prefix, party.TaxID))
	}

	addr := f.sub(addressTag)
	if addr.el == nil {
		addr = f.sub("endereco")
	}
	party.Address = model.Address{
		Street:       addr.optionalText("xLgr"),
		Number:       addr.optionalText("nro"),
		Complement:   addr.optionalText("xCpl"),
		Neighborhood: addr.optionalText("xBairro"),
	}
	party.City = addr.optionalText("xMun")
	party.State = addr.optionalText("UF")
	party.PostalCode = addr.optionalText("CEP")
	party.Phone = addr.optionalText("fone")

	return party, nil
}

func (p *Parser) parseItems(inf *etree.Element, doc *model.Document, log *zap.Logger) error {
	seen := make(map[int]bool)

	for _, det := range inf.SelectElements("det") {
		raw := det.SelectAttrValue("nItem", "")
		number, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || number < 1 {
			return model.NewFieldExtractionError("det/@nItem", 0, fmt.Sprintf("invalid item number %q", raw), err)
		}
		if seen[number] {
			return model.NewFieldExtractionError("det/@nItem", number, "duplicate item number", nil)
		}
		seen[number] = true

		f := fields{el: det, prefix: "det", item: number, doc: doc, log: log}
		if det.SelectElement("prod") == nil {
			reason := "missing prod block"
			doc.Skipped = append(doc.Skipped, model.SkippedItem{Number: number, Reason: reason})
			f.warn("skipped: " + reason)
			continue
		}

		item, err := p.parseItem(f, number)
		if err != nil {
			return err
		}
		doc.Items = append(doc.Items, item)
	}

	if len(doc.Items) == 0 {
		return model.NewFieldExtractionError("det", 0, "no parsable line items", nil)
	}
	return nil
}

func (p *Parser) parseItem(f fields, number int) (model.LineItem, error) {
	item := model.LineItem{Number: number}
	prod := f.sub("prod")

	var err error
	for _, field := range []struct {
		path string
		dst  *string
	}{
		{"cProd", &item.ProductCode},
		{"xProd", &item.ProductName},
		{"NCM", &item.NCM},
		{"CFOP", &item.CFOP},
		{"uCom", &item.Unit},
	} {
		if *field.dst, err = prod.requireText(field.path); err != nil {
			return item, err
		}
	}

	if item.Quantity, err = prod.requireDecimal("qCom"); err != nil {
		return item, err
	}
	if item.UnitValue, err = prod.requireDecimal("vUnCom"); err != nil {
		return item, err
	}
	if item.TotalValue, err = prod.requireDecimal("vProd"); err != nil {
		return item, err
	}

	switch {
	case !dec.IsPositive(item.Quantity):
		return item, model.NewFieldExtractionError(prod.name("qCom"), number, "quantity must be positive", nil)
	case !dec.IsNonNegative(item.UnitValue):
		return item, model.NewFieldExtractionError(prod.name("vUnCom"), number, "unit value must not be negative", nil)
	case !dec.IsNonNegative(item.TotalValue):
		return item, model.NewFieldExtractionError(prod.name("vProd"), number, "total value must not be negative", nil)
	}

	if len(item.NCM) != 8 {
		f.warn(fmt.Sprintf("NCM %q is not 8 digits", item.NCM))
	}
	if len(item.CFOP) != 4 {
		f.warn(fmt.Sprintf("CFOP %q is not 4 digits", item.CFOP))
	}

	item.Taxes = parseItemTaxes(f.sub("imposto"))
	return item, nil
}

func parseItemTaxes(imposto fields) model.TaxBreakdown {
	taxes := model.TaxBreakdown{
		ICMS:   imposto.sub("ICMS").first().triple("ICMS"),
		PIS:    imposto.sub("PIS").first().triple("PIS"),
		COFINS: imposto.sub("COFINS").first().triple("COFINS"),
		IPI:    imposto.sub("IPI/IPITrib").triple("IPI"),
	}

	for name, t := range map[string]model.TaxTriple{"ICMS": taxes.ICMS, "PIS": taxes.PIS, "COFINS": taxes.COFINS, "IPI": taxes.IPI} {
		if !t.Rate.IsZero() && !t.Consistent() {
			imposto.log.Debug("tax value differs from base*rate/100",
				zap.Int("item", imposto.item),
				zap.String("tax", name),
				zap.String("value", t.Value.String()),
			)
		}
	}

	taxes.RecomputeFederal()
	return taxes
}

func (p *Parser) parseTotals(tot fields, doc *model.Document) error {
	if tot.el == nil {
		return model.NewFieldExtractionError("total/ICMSTot", 0, "required field missing", nil)
	}

	document, err := tot.requireDecimal("vNF")
	if err != nil {
		return err
	}

	doc.Totals = model.Totals{
		Products:  tot.optionalDecimal("vProd"),
		Services:  tot.optionalDecimal("vServ"),
		Document:  document,
		Discount:  tot.optionalDecimal("vDesc"),
		Freight:   tot.optionalDecimal("vFrete"),
		Insurance: tot.optionalDecimal("vSeg"),
		Other:     tot.optionalDecimal("vOutro"),
	}
	if !doc.Totals.Consistent() {
		expected := doc.Totals.Products.Add(doc.Totals.Services)
		return model.NewFieldExtractionError(tot.name("vNF"), 0,
			fmt.Sprintf("document total %s differs from products + services %s", dec.Fixed2(document), dec.Fixed2(expected)), nil)
	}

	doc.Taxes = model.TaxBreakdown{
		ICMS:   model.TaxTriple{Base: tot.optionalDecimal("vBC"), Value: tot.optionalDecimal("vICMS")},
		PIS:    model.TaxTriple{Value: tot.optionalDecimal("vPIS")},
		COFINS: model.TaxTriple{Value: tot.optionalDecimal("vCOFINS")},
		IPI:    model.TaxTriple{Value: tot.optionalDecimal("vIPI")},
	}
	doc.Taxes.RecomputeFederal()
	return nil
}
