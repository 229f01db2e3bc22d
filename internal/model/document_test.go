package model_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/fiscal-xml/internal/model"
)

const sampleKey = "41240112345678000195550010000001231000001234"

func TestDocumentKey_Accessors(t *testing.T) {
	k := model.DocumentKey(sampleKey)

	assert.Equal(t, "41", k.State())
	assert.Equal(t, "2401", k.YearMonth())
	assert.Equal(t, "12345678000195", k.TaxID())
	assert.Equal(t, "55", k.Model())
	assert.Equal(t, "001", k.Series())
	assert.Equal(t, "000000123", k.Number())
	assert.Equal(t, "1", k.EmissionType())
	assert.Equal(t, "00000123", k.Code())
	assert.Equal(t, "4", k.CheckDigit())

	short := model.DocumentKey("4124")
	assert.Empty(t, short.Model())
}

func TestDocumentTypeFromModel(t *testing.T) {
	assert.Equal(t, model.DocumentTypeNFe, model.DocumentTypeFromModel("55"))
	assert.Equal(t, model.DocumentTypeNFCe, model.DocumentTypeFromModel("65"))
	assert.Equal(t, model.DocumentTypeCTe, model.DocumentTypeFromModel("57"))
	assert.Equal(t, model.DocumentTypeNFe, model.DocumentTypeFromModel(""))
}

func TestParty_FullAddress(t *testing.T) {
	p := model.Party{Address: model.Address{
		Street:       "Rua XV de Novembro",
		Number:       "100",
		Neighborhood: "Centro",
	}}
	assert.Equal(t, "Rua XV de Novembro, 100, Centro", p.FullAddress())
	assert.Empty(t, model.Party{}.FullAddress())
}

func TestTaxTriple_Compute(t *testing.T) {
	tr := model.NewTaxTriple(decimal.RequireFromString("250.00"), decimal.RequireFromString("7.60"))
	assert.True(t, tr.Value.Equal(decimal.RequireFromString("19.00")))
	assert.True(t, tr.Consistent())

	tr.Value = decimal.RequireFromString("19.01")
	assert.False(t, tr.Consistent())
}

func TestTaxBreakdown_RecomputeFederal(t *testing.T) {
	b := model.TaxBreakdown{
		ICMS:      model.TaxTriple{Value: decimal.RequireFromString("18.00")},
		PIS:       model.TaxTriple{Value: decimal.RequireFromString("1.65")},
		COFINS:    model.TaxTriple{Value: decimal.RequireFromString("7.60")},
		IBS:       model.TaxTriple{Value: decimal.RequireFromString("0.10")},
		CBS:       model.TaxTriple{Value: decimal.RequireFromString("0.90")},
		Selective: model.TaxTriple{Value: decimal.RequireFromString("2.00")},
	}
	b.RecomputeFederal()

	// ICMS is a state tax and stays out of the federal sum
	assert.True(t, b.TotalFederalTaxes.Equal(decimal.RequireFromString("12.25")), b.TotalFederalTaxes.String())
}

func TestTotals_Consistent(t *testing.T) {
	tests := []struct {
		name     string
		products string
		services string
		document string
		want     bool
	}{
		{"exact", "100.00", "0", "100.00", true},
		{"with services", "80.00", "20.00", "100.00", true},
		{"one cent off", "100.00", "0", "100.01", true},
		{"two cents off", "100.00", "0", "100.02", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tot := model.Totals{
				Products: decimal.RequireFromString(tt.products),
				Services: decimal.RequireFromString(tt.services),
				Document: decimal.RequireFromString(tt.document),
			}
			assert.Equal(t, tt.want, tot.Consistent())
		})
	}
}

func TestDocument_OriginalXMLIsImmutable(t *testing.T) {
	raw := []byte("<NFe/>")
	doc := model.NewDocument(raw)
	require.NotEmpty(t, doc.ID)

	raw[1] = 'X'
	assert.Equal(t, "<NFe/>", string(doc.OriginalXML()))

	out := doc.OriginalXML()
	out[1] = 'Y'
	assert.Equal(t, "<NFe/>", string(doc.OriginalXML()))
}

func TestDocument_Item(t *testing.T) {
	doc := model.NewDocument(nil)
	doc.Items = []model.LineItem{{Number: 1}, {Number: 3}}

	item, ok := doc.Item(3)
	require.True(t, ok)
	assert.Equal(t, 3, item.Number)

	_, ok = doc.Item(2)
	assert.False(t, ok)
}

func TestErrors_Unwrap(t *testing.T) {
	cause := fmt.Errorf("boom")

	var fe *model.FieldExtractionError
	err := fmt.Errorf("parse: %w", model.NewFieldExtractionError("prod/NCM", 2, "required field missing", cause))
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Item)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "item 2: prod/NCM")

	ie := model.NewIntegrationError("ibs-cbs", 3, 503, cause)
	assert.Contains(t, ie.Error(), "status 503")
	assert.ErrorIs(t, ie, cause)

	ge := model.NewGenerationError(sampleKey, "write failed", cause)
	assert.Contains(t, ge.Error(), sampleKey)
}
