package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dec "github.com/rezonia/fiscal-xml/internal/decimal"
)

// Namespace is the XML namespace of every NF-e layout
const Namespace = "http://www.portalfiscal.inf.br/nfe"

// DocumentType identifies the fiscal document family
type DocumentType string

const (
	DocumentTypeNFe  DocumentType = "nfe"
	DocumentTypeNFCe DocumentType = "nfce"
	DocumentTypeCTe  DocumentType = "cte"
)

// DocumentTypeFromModel maps the layout model code (mod) to a DocumentType
func DocumentTypeFromModel(code string) DocumentType {
	switch code {
	case "65":
		return DocumentTypeNFCe
	case "57":
		return DocumentTypeCTe
	default:
		return DocumentTypeNFe
	}
}

// DocumentKey is the 44-digit access key (chave de acesso)
type DocumentKey string

// Positional accessors. They assume a key of full length; callers validate first.
func (k DocumentKey) State() string        { return k.slice(0, 2) }
func (k DocumentKey) YearMonth() string    { return k.slice(2, 6) }
func (k DocumentKey) TaxID() string        { return k.slice(6, 20) }
func (k DocumentKey) Model() string        { return k.slice(20, 22) }
func (k DocumentKey) Series() string       { return k.slice(22, 25) }
func (k DocumentKey) Number() string       { return k.slice(25, 34) }
func (k DocumentKey) EmissionType() string { return k.slice(34, 35) }
func (k DocumentKey) Code() string         { return k.slice(35, 43) }
func (k DocumentKey) CheckDigit() string   { return k.slice(43, 44) }

func (k DocumentKey) String() string { return string(k) }

func (k DocumentKey) slice(from, to int) string {
	if len(k) < to {
		return ""
	}
	return string(k[from:to])
}

// Address is a party's postal address
type Address struct {
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
}

// AddressSeparator joins the address components in Party.FullAddress
const AddressSeparator = ", "

// Party is the emitter or recipient of a document
type Party struct {
	TaxID      string  `json:"tax_id"`
	Name       string  `json:"name"`
	TradeName  string  `json:"trade_name,omitempty"`
	Address    Address `json:"address"`
	City       string  `json:"city,omitempty"`
	State      string  `json:"state,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
}

// FullAddress composes street, number, complement and neighborhood, skipping blanks
func (p Party) FullAddress() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.Address.Street, p.Address.Number, p.Address.Complement, p.Address.Neighborhood} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, AddressSeparator)
}

// TaxTriple is the base/rate/value of one tax
type TaxTriple struct {
	Base  decimal.Decimal `json:"base"`
	Rate  decimal.Decimal `json:"rate"`
	Value decimal.Decimal `json:"value"`
}

// NewTaxTriple builds a triple whose value is derived from base and rate
func NewTaxTriple(base, rate decimal.Decimal) TaxTriple {
	t := TaxTriple{Base: base, Rate: rate}
	t.Compute()
	return t
}

// Compute sets Value = round(Base * Rate / 100, 2)
func (t *TaxTriple) Compute() {
	t.Value = dec.TaxValue(t.Base, t.Rate)
}

// Consistent reports whether Value matches Base and Rate
func (t TaxTriple) Consistent() bool {
	return t.Value.Equal(dec.TaxValue(t.Base, t.Rate))
}

// TaxBreakdown holds the tax figures of an item or of the whole document
type TaxBreakdown struct {
	ICMS      TaxTriple `json:"icms"`
	PIS       TaxTriple `json:"pis"`
	COFINS    TaxTriple `json:"cofins"`
	IPI       TaxTriple `json:"ipi"`
	IBS       TaxTriple `json:"ibs"`
	CBS       TaxTriple `json:"cbs"`
	Selective TaxTriple `json:"selective"`

	// SelectiveFallback is set when Selective is an assumed zero because the
	// calculation service could not be reached, not a confirmed figure.
	SelectiveFallback bool `json:"selective_fallback,omitempty"`

	TotalFederalTaxes decimal.Decimal `json:"total_federal_taxes"`
}

// RecomputeFederal sets TotalFederalTaxes to the sum of the federal values.
// ICMS is a state tax and is not part of the sum.
func (b *TaxBreakdown) RecomputeFederal() {
	b.TotalFederalTaxes = dec.Sum([]decimal.Decimal{
		b.PIS.Value,
		b.COFINS.Value,
		b.IPI.Value,
		b.IBS.Value,
		b.CBS.Value,
		b.Selective.Value,
	})
}

// LineItem is one det entry of the document
type LineItem struct {
	Number      int             `json:"number"`
	ProductCode string          `json:"product_code"`
	ProductName string          `json:"product_name"`
	NCM         string          `json:"ncm"`
	CFOP        string          `json:"cfop"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitValue   decimal.Decimal `json:"unit_value"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Taxes       TaxBreakdown    `json:"taxes"`
}

// Totals is the ICMSTot block
type Totals struct {
	Products  decimal.Decimal `json:"products"`
	Services  decimal.Decimal `json:"services"`
	Document  decimal.Decimal `json:"document"`
	Discount  decimal.Decimal `json:"discount"`
	Freight   decimal.Decimal `json:"freight"`
	Insurance decimal.Decimal `json:"insurance"`
	Other     decimal.Decimal `json:"other"`
}

// Consistent reports whether Document == Products + Services within one cent
func (t Totals) Consistent() bool {
	return dec.WithinTolerance(t.Document, t.Products.Add(t.Services))
}

// SkippedItem records a det entry left out of the Document and why
type SkippedItem struct {
	Number int    `json:"number"`
	Reason string `json:"reason"`
}

// Document is the parsed NF-e aggregate
type Document struct {
	ID                string       `json:"id"`
	Key               DocumentKey  `json:"key"`
	Type              DocumentType `json:"type"`
	LayoutVersion     string       `json:"layout_version"`
	Series            string       `json:"series"`
	Number            string       `json:"number"`
	IssuedAt          time.Time    `json:"issued_at"`
	NatureOfOperation string       `json:"nature_of_operation,omitempty"`

	Emitter   Party        `json:"emitter"`
	Recipient Party        `json:"recipient"`
	Items     []LineItem   `json:"items"`
	Totals    Totals       `json:"totals"`
	Taxes     TaxBreakdown `json:"taxes"`

	UpdatedXML  string        `json:"updated_xml,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	Skipped     []SkippedItem `json:"skipped,omitempty"`
	ProcessedAt time.Time     `json:"processed_at"`

	original []byte
}

// NewDocument creates an empty Document that owns a private copy of raw
func NewDocument(raw []byte) *Document {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &Document{
		ID:          uuid.NewString(),
		ProcessedAt: time.Now().UTC(),
		original:    buf,
	}
}

// OriginalXML returns a copy of the XML the document was parsed from
func (d *Document) OriginalXML() []byte {
	buf := make([]byte, len(d.original))
	copy(buf, d.original)
	return buf
}

// AddWarning appends a non-fatal issue
func (d *Document) AddWarning(msg string) {
	d.Warnings = append(d.Warnings, msg)
}

// Item returns the line item with the given number
func (d *Document) Item(number int) (*LineItem, bool) {
	for i := range d.Items {
		if d.Items[i].Number == number {
			return &d.Items[i], true
		}
	}
	return nil, false
}

// Summary is a compact view of a document, produced even for invalid input
type Summary struct {
	FileName       string          `json:"file_name,omitempty"`
	DocumentKey    string          `json:"document_key"`
	DocumentType   DocumentType    `json:"document_type,omitempty"`
	Series         string          `json:"series"`
	Number         string          `json:"number"`
	IssueDate      string          `json:"issue_date,omitempty"`
	EmitterName    string          `json:"emitter_name"`
	EmitterTaxID   string          `json:"emitter_tax_id,omitempty"`
	RecipientName  string          `json:"recipient_name,omitempty"`
	RecipientTaxID string          `json:"recipient_tax_id,omitempty"`
	TotalValue     decimal.Decimal `json:"total_value"`
	ItemCount      int             `json:"item_count"`
	ValidStructure bool            `json:"valid_structure"`
	Warnings       []string        `json:"warnings,omitempty"`
	Error          string          `json:"error,omitempty"`
}
