package generator_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rezonia/fiscal-xml/internal/generator"
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/nfetest"
	"github.com/rezonia/fiscal-xml/internal/parser/nfe"
)

func parseFixture(t *testing.T, name string) *model.Document {
	t.Helper()
	doc, err := nfe.New().Parse(nfetest.Fixture(t, name))
	require.NoError(t, err)
	return doc
}

func TestUpdate_RoundTripIsByteIdentical(t *testing.T) {
	raw := nfetest.Fixture(t, nfetest.Full)
	doc := parseFixture(t, nfetest.Full)

	out, err := generator.New().Update(doc)
	require.NoError(t, err)
	assert.Equal(t, string(raw), out)
}

func TestUpdate_OnlyReformatsRates(t *testing.T) {
	raw := string(nfetest.Fixture(t, nfetest.Minimal))
	doc := parseFixture(t, nfetest.Minimal)

	out, err := generator.New().Update(doc)
	require.NoError(t, err)

	expected := strings.NewReplacer(
		"<pPIS>1.6500</pPIS>", "<pPIS>1.65</pPIS>",
		"<pCOFINS>7.6000</pCOFINS>", "<pCOFINS>7.60</pCOFINS>",
	).Replace(raw)
	assert.Equal(t, expected, out)
}

func TestUpdate_WritesRecalculatedValues(t *testing.T) {
	doc := parseFixture(t, nfetest.Full)
	original := doc.OriginalXML()

	item := &doc.Items[1]
	item.Taxes.ICMS = model.NewTaxTriple(decimal.RequireFromString("123.45"), decimal.RequireFromString("7.6"))
	doc.Taxes.ICMS.Value = decimal.RequireFromString("189.38")
	doc.Taxes.IPI.Value = decimal.RequireFromString("5")

	g := generator.New()
	out, err := g.Update(doc)
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromString(out))
	icms := tree.FindElement("//det[@nItem='2']/imposto/ICMS/ICMS00")
	require.NotNil(t, icms)
	assert.Equal(t, "123.45", icms.SelectElement("vBC").Text())
	assert.Equal(t, "7.60", icms.SelectElement("pICMS").Text())
	assert.Equal(t, "9.38", icms.SelectElement("vICMS").Text())

	tot := tree.FindElement("//total/ICMSTot")
	assert.Equal(t, "189.38", tot.SelectElement("vICMS").Text())
	assert.Equal(t, "5.00", tot.SelectElement("vIPI").Text())
	// vBC of the totals block is not a rewritten leaf
	assert.Equal(t, "1250.50", tot.SelectElement("vBC").Text())

	// item 1 untouched
	assert.Equal(t, "180.00", tree.FindElement("//det[@nItem='1']/imposto/ICMS/ICMS00/vICMS").Text())

	// the original is never mutated and updates do not compound
	assert.Equal(t, original, doc.OriginalXML())
	again, err := g.Update(doc)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestUpdate_MissingLeavesAreNotCreated(t *testing.T) {
	doc := parseFixture(t, nfetest.MissingProd)
	doc.Items[0].Taxes.ICMS = model.NewTaxTriple(decimal.NewFromInt(60), decimal.NewFromInt(18))

	out, err := generator.New().Update(doc)
	require.NoError(t, err)
	assert.NotContains(t, out, "<vICMS>")
	assert.Equal(t, string(nfetest.Fixture(t, nfetest.MissingProd)), out)
}

func TestUpdate_Latin1OutputIsUTF8(t *testing.T) {
	doc := parseFixture(t, nfetest.Latin1)

	out, err := generator.New().Update(doc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, out, "Comércio Exemplo Ltda")
}

func TestUpdate_CustomStrategy(t *testing.T) {
	doc := parseFixture(t, nfetest.Minimal)
	doc.Items[0].Taxes.IBS = model.NewTaxTriple(decimal.NewFromInt(100), decimal.RequireFromString("0.1"))

	inject := generator.StrategyFunc(func(inf *etree.Element, d *model.Document) error {
		for _, item := range d.Items {
			imposto := inf.FindElement(fmt.Sprintf("det[@nItem='%d']/imposto", item.Number))
			group := imposto.CreateElement("IBSCBS")
			group.CreateElement("vIBS").SetText(item.Taxes.IBS.Value.StringFixed(2))
		}
		return nil
	})

	out, err := generator.New(generator.WithStrategy("4.00", inject)).Update(doc)
	require.NoError(t, err)
	assert.Contains(t, out, "<IBSCBS><vIBS>0.10</vIBS></IBSCBS>")
	assert.NotContains(t, string(doc.OriginalXML()), "IBSCBS")
}

func TestUpdate_StrategyFailureIsGenerationError(t *testing.T) {
	doc := parseFixture(t, nfetest.Minimal)
	boom := errors.New("layout not finalized")

	g := generator.New(generator.WithStrategy("4.00", generator.StrategyFunc(func(*etree.Element, *model.Document) error {
		return boom
	})))

	out, err := g.Update(doc)
	require.Error(t, err)
	assert.Empty(t, out)

	var ge *model.GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, nfetest.MinimalKey, ge.DocumentKey)
	assert.ErrorIs(t, err, boom)
}

func TestUpdate_UnknownItemIsGenerationError(t *testing.T) {
	doc := parseFixture(t, nfetest.Minimal)
	doc.Items[0].Number = 9

	_, err := generator.New().Update(doc)
	var ge *model.GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Contains(t, ge.Message, "nItem=9")
}

func TestUpdate_LogsConsumptionTaxes(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	doc := parseFixture(t, nfetest.Minimal)
	doc.Taxes.SelectiveFallback = true

	_, err := generator.New(generator.WithLogger(zap.New(core))).Update(doc)
	require.NoError(t, err)

	entries := logs.FilterMessage("consumption taxes computed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].ContextMap()["selective_fallback"])
}
