// Package fiscalxml provides a public API for reading, validating and
// regenerating Brazilian NF-e/NFC-e XML documents.
//
// Example usage:
//
//	proc := fiscalxml.NewProcessor(fiscalxml.DefaultOptions())
//	doc, err := proc.Process(ctx, reader)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(doc.Key, doc.Totals.Document)
package fiscalxml

import (
	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/signature"
)

// Re-export core types for public API
type (
	Document     = model.Document
	DocumentKey  = model.DocumentKey
	DocumentType = model.DocumentType
	LineItem     = model.LineItem
	Party        = model.Party
	Address      = model.Address
	TaxTriple    = model.TaxTriple
	TaxBreakdown = model.TaxBreakdown
	Totals       = model.Totals
	Summary      = model.Summary

	VerificationResult = signature.VerificationResult
)

// Re-export document types
const (
	DocumentTypeNFe  = model.DocumentTypeNFe
	DocumentTypeNFCe = model.DocumentTypeNFCe
)

// Re-export error types
type (
	StructuralValidationError = model.StructuralValidationError
	FieldExtractionError      = model.FieldExtractionError
	KeyFormatError            = model.KeyFormatError
	DateParseError            = model.DateParseError
	IntegrationError          = model.IntegrationError
	GenerationError           = model.GenerationError
)
