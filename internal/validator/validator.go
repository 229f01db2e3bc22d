// Package validator checks NF-e layout conformance and the check-digit rules
// of the identifiers carried in a document.
package validator

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/xmldoc"
)

// SupportedVersions lists the NF-e layout versions accepted by ValidateStructure
var SupportedVersions = []string{"4.00"}

// validStates are the IBGE UF codes allowed in the first two key positions
var validStates = map[string]bool{
	"11": true, "12": true, "13": true, "14": true, "15": true, "16": true, "17": true,
	"21": true, "22": true, "23": true, "24": true, "25": true, "26": true, "27": true, "28": true, "29": true,
	"31": true, "32": true, "33": true, "35": true,
	"41": true, "42": true, "43": true,
	"50": true, "51": true, "52": true, "53": true,
}

var validModels = map[string]bool{"55": true, "65": true}

// mandatory subtrees under infNFe, in document order
var mandatorySections = []string{"ide", "emit", "dest", "det", "total"}

// ValidateStructure reports whether xml is a supported NF-e. It never fails;
// use CheckStructure for the reason.
func ValidateStructure(xml []byte) bool {
	return CheckStructure(xml) == nil
}

// CheckStructure is ValidateStructure returning the first failed check
func CheckStructure(xml []byte) error {
	doc, err := xmldoc.Read(xml)
	if err != nil {
		return model.NewStructuralValidationError("malformed XML", err)
	}
	return CheckTree(doc)
}

// CheckTree runs the structure checks over an already parsed document
func CheckTree(doc *etree.Document) error {
	root := doc.Root()
	if root == nil {
		return model.NewStructuralValidationError("empty document", nil)
	}

	nfe := xmldoc.FindNFe(root)
	if nfe == nil {
		return model.NewStructuralValidationError("NFe element not found", nil)
	}
	if nfe.NamespaceURI() != model.Namespace {
		return model.NewStructuralValidationError("unexpected namespace "+quote(nfe.NamespaceURI()), nil)
	}

	inf := nfe.SelectElement("infNFe")
	if inf == nil {
		return model.NewStructuralValidationError("missing infNFe", nil)
	}
	for _, name := range mandatorySections {
		if inf.SelectElement(name) == nil {
			return model.NewStructuralValidationError("missing "+name, nil)
		}
	}

	version := inf.SelectAttrValue("versao", "")
	if !supported(version) {
		return model.NewStructuralValidationError("unsupported layout version "+quote(version), nil)
	}
	return nil
}

func supported(version string) bool {
	for _, v := range SupportedVersions {
		if v == version {
			return true
		}
	}
	return false
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + s + `"`
}

// ValidateDocumentKey checks length, digits, state code and model code of a 44-digit key
func ValidateDocumentKey(key string) bool {
	return CheckDocumentKey(key) == nil
}

// CheckDocumentKey is ValidateDocumentKey returning a *model.KeyFormatError
func CheckDocumentKey(key string) error {
	switch {
	case len(key) != 44:
		return model.NewKeyFormatError(key, fmt.Sprintf("expected 44 digits, got %d characters", len(key)))
	case !allDigits(key):
		return model.NewKeyFormatError(key, "non-digit characters")
	}
	k := model.DocumentKey(key)
	if !validStates[k.State()] {
		return model.NewKeyFormatError(key, "unknown state code "+k.State())
	}
	if !validModels[k.Model()] {
		return model.NewKeyFormatError(key, "unsupported model "+k.Model())
	}
	return nil
}

var (
	cnpjWeights1 = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjWeights2 = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateTaxID checks a 14-digit CNPJ against its two modulo-11 check digits.
// Punctuation (dots, slash, dash) is ignored.
func ValidateTaxID(id string) bool {
	digits := OnlyDigits(id)
	if len(digits) != 14 || repeated(digits) {
		return false
	}
	d1 := checkDigit(digits[:12], cnpjWeights1)
	d2 := checkDigit(digits[:13], cnpjWeights2)
	return int(digits[12]-'0') == d1 && int(digits[13]-'0') == d2
}

// ValidateCPF checks an 11-digit CPF against its two modulo-11 check digits
func ValidateCPF(id string) bool {
	digits := OnlyDigits(id)
	if len(digits) != 11 || repeated(digits) {
		return false
	}
	d1 := checkDigit(digits[:9], []int{10, 9, 8, 7, 6, 5, 4, 3, 2})
	d2 := checkDigit(digits[:10], []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2})
	return int(digits[9]-'0') == d1 && int(digits[10]-'0') == d2
}

func checkDigit(digits string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	d := 11 - sum%11
	if d >= 10 {
		return 0
	}
	return d
}

// OnlyDigits strips every non-digit character
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func repeated(s string) bool {
	return len(s) > 0 && bytes.Count([]byte(s), []byte{s[0]}) == len(s)
}
