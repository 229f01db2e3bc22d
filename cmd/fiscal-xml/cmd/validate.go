package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/processor"
	"github.com/rezonia/fiscal-xml/internal/validator"
)

var (
	strictValidation bool
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate NF-e files",
	Long: `Validate one or more NF-e files.

Checks performed:
  - Namespace, mandatory sections and layout version (4.00)
  - Access key format
  - Required item and total fields, issue date
  - CNPJ/CPF check digits, totals and item sums (warnings)

Examples:
  fiscal-xml validate nota.xml
  fiscal-xml validate *.xml --strict`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&strictValidation, "strict", false, "Treat warnings as errors")
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	p := newProcessor(nil, nil)
	results := make([]*ValidationResult, 0, len(files))
	allValid := true

	for _, file := range files {
		result := validateFile(commandContext(cmd), p, file)
		results = append(results, result)
		if !result.Valid {
			allValid = false
		}
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Printf("✓ %s: VALID\n", r.File)
			} else {
				fmt.Printf("✗ %s: INVALID\n", r.File)
				for _, e := range r.Errors {
					fmt.Printf("  - %s\n", e)
				}
			}
			for _, w := range r.Warnings {
				fmt.Printf("  ⚠ %s\n", w)
			}
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

func validateFile(ctx context.Context, p *processor.Processor, filePath string) *ValidationResult {
	result := &ValidationResult{
		File:     filePath,
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("failed to read file: %v", err))
		return result
	}

	if err := validator.CheckStructure(data); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
		return result
	}

	doc, err := p.Process(ctx, data)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, describe(err))
		return result
	}
	result.DocumentKey = doc.Key.String()
	result.Warnings = append(result.Warnings, doc.Warnings...)
	result.Warnings = append(result.Warnings, processor.Review(doc)...)

	if strictValidation && len(result.Warnings) > 0 {
		result.Valid = false
		result.Errors = append(result.Errors, result.Warnings...)
		result.Warnings = []string{}
	}
	return result
}

// describe prefixes err with the kind of failure
func describe(err error) string {
	var (
		field *model.FieldExtractionError
		key   *model.KeyFormatError
		date  *model.DateParseError
	)
	switch {
	case errors.As(err, &field):
		return "field error: " + err.Error()
	case errors.As(err, &key):
		return "key error: " + err.Error()
	case errors.As(err, &date):
		return "date error: " + err.Error()
	default:
		return err.Error()
	}
}

// ValidationResult holds the result of validating a single file
type ValidationResult struct {
	File        string   `json:"file"`
	Valid       bool     `json:"valid"`
	DocumentKey string   `json:"document_key,omitempty"`
	Errors      []string `json:"errors,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}
