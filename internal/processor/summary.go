package processor

import (
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/validator"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// Summary warnings
const (
	WarnEmitterNameMissing = "emitter name not found"
	WarnTotalZero          = "document total is zero"
)

// Summarize extracts a quick summary without full parsing. It never fails:
// unreadable input yields a zero summary with Error set.
func (p *Processor) Summarize(raw []byte) model.Summary {
	start := time.Now()
	s := model.Summary{TotalValue: dec.Zero}

	tree, err := xmldoc.Read(raw)
	if err != nil {
		s.Error = fmt.Sprintf("malformed XML: %v", err)
		p.metrics.ObserveDocument(OpSummary, metrics.OutcomeError, time.Since(start))
		p.log.Warn("summary extraction failed", zap.Error(err))
		return s
	}
	s.ValidStructure = validator.CheckTree(tree) == nil

	inf := xmldoc.InfNFe(tree)
	if inf == nil {
		s.Error = "infNFe not found"
		p.metrics.ObserveDocument(OpSummary, metrics.OutcomeError, time.Since(start))
		return s
	}

	s.DocumentKey = strings.TrimPrefix(inf.SelectAttrValue("Id", ""), "NFe")
	if mod, ok := xmldoc.Text(inf, "ide/mod"); ok && mod != "" {
		s.DocumentType = model.DocumentTypeFromModel(mod)
	} else {
		s.DocumentType = model.DocumentTypeFromModel(model.DocumentKey(s.DocumentKey).Model())
	}
	s.Series, _ = xmldoc.Text(inf, "ide/serie")
	s.Number, _ = xmldoc.Text(inf, "ide/nNF")
	if s.IssueDate, _ = xmldoc.Text(inf, "ide/dhEmi"); s.IssueDate == "" {
		s.IssueDate, _ = xmldoc.Text(inf, "ide/dEmi")
	}
	s.EmitterName, _ = xmldoc.Text(inf, "emit/xNome")
	s.EmitterTaxID = taxID(inf, "emit")
	s.RecipientName, _ = xmldoc.Text(inf, "dest/xNome")
	s.RecipientTaxID = taxID(inf, "dest")
	s.ItemCount = len(inf.SelectElements("det"))

	if text, ok := xmldoc.Text(inf, "total/ICMSTot/vNF"); ok {
		v, err := dec.FromString(text)
		if err != nil {
			s.Warnings = append(s.Warnings, fmt.Sprintf("total value %q is not a number", text))
		} else {
			s.TotalValue = v
		}
	}

	if s.EmitterName == "" {
		s.Warnings = append(s.Warnings, WarnEmitterNameMissing)
	}
	if s.TotalValue.IsZero() {
		s.Warnings = append(s.Warnings, WarnTotalZero)
	}

	p.metrics.ObserveDocument(OpSummary, metrics.OutcomeOK, time.Since(start))
	p.log.Debug("summary extracted",
		zap.String("document_key", s.DocumentKey),
		zap.Bool("valid_structure", s.ValidStructure),
		zap.Int("items", s.ItemCount),
	)
	return s
}

// Review returns consistency warnings for a parsed document: invalid tax ids,
// a non-positive total, no items, and items that do not add up to the
// products total
func Review(doc *model.Document) []string {
	var warnings []string
	if !validTaxID(doc.Emitter.TaxID) {
		warnings = append(warnings, fmt.Sprintf("emitter tax id invalid: %s", doc.Emitter.TaxID))
	}
	if doc.Recipient.TaxID != "" && !validTaxID(doc.Recipient.TaxID) {
		warnings = append(warnings, fmt.Sprintf("recipient tax id invalid: %s", doc.Recipient.TaxID))
	}
	if !doc.Totals.Document.IsPositive() {
		warnings = append(warnings, "document total is zero or negative")
	}
	if len(doc.Items) == 0 {
		warnings = append(warnings, "document has no items")
	}

	sum := decimal.Zero
	for _, item := range doc.Items {
		sum = sum.Add(item.TotalValue)
	}
	if len(doc.Skipped) == 0 && !dec.WithinTolerance(sum, doc.Totals.Products) {
		warnings = append(warnings, fmt.Sprintf("items add up to %s but products total is %s",
			sum.StringFixed(2), doc.Totals.Products.StringFixed(2)))
	}
	return warnings
}

func validTaxID(id string) bool {
	if len(validator.OnlyDigits(id)) == 11 {
		return validator.ValidateCPF(id)
	}
	return validator.ValidateTaxID(id)
}

func taxID(inf *etree.Element, party string) string {
	if v, ok := xmldoc.Text(inf, party+"/CNPJ"); ok && v != "" {
		return v
	}
	v, _ := xmldoc.Text(inf, party+"/CPF")
	return v
}
