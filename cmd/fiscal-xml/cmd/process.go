package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/processor"
)

var (
	outputFile  string
	writeXMLDir string
	recalculate bool
	timeout     time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Parse NF-e files and regenerate their XML",
	Long: `Parse one or more NF-e files and regenerate the XML from the parsed state.

With --recalculate the tax calculation service is asked for IBS, CBS and
Selective Tax of every item before the XML is regenerated. Without it the
service is not called.

Examples:
  fiscal-xml process nota.xml
  fiscal-xml process notas/ --recalculate -o results.json
  fiscal-xml process *.xml --recalculate --write-xml out/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	processCmd.Flags().StringVar(&writeXMLDir, "write-xml", "", "Directory to write the updated XML files to")
	processCmd.Flags().BoolVar(&recalculate, "recalculate", false, "Recalculate IBS, CBS and Selective Tax through the tax service")
	processCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Timeout for the whole run")
}

func runProcess(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to process")
	}
	printVerbose("Found %d files to process\n", len(files))

	inputs, err := readInputs(files)
	if err != nil {
		return err
	}

	var tc processor.TaxCalculator
	if recalculate {
		client, redis, err := newTaxClient(nil)
		if err != nil {
			return err
		}
		if redis != nil {
			defer redis.Close()
		}
		tc = client
		printVerbose("Tax service: %s\n", cfg.TaxAPI.URL)
	}

	ctx, cancel := context.WithTimeout(commandContext(cmd), timeout)
	defer cancel()

	batch := newProcessor(tc, nil).ProcessBatch(ctx, inputs, processor.BatchOptions{Recalculate: recalculate})
	results := make([]*ProcessResult, 0, len(batch))
	failed := 0
	for _, r := range batch {
		result := newProcessResult(r)
		if result.Error == "" && writeXMLDir != "" {
			if err := writeUpdatedXML(writeXMLDir, r); err != nil {
				result.Error = err.Error()
			}
		}
		if result.Error != "" {
			failed++
			printVerbose("  %s: %s\n", result.File, result.Error)
		}
		results = append(results, result)
	}

	if err := outputResults(results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func writeUpdatedXML(dir string, r processor.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(r.Name))
	if err := os.WriteFile(path, []byte(r.Document.UpdatedXML), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	printVerbose("  wrote %s\n", path)
	return nil
}

func outputResults(results []*ProcessResult) error {
	var writer io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		writer = f
	}

	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(results)
	case "table":
		return outputTable(writer, results)
	default:
		return fmt.Errorf("unsupported output format: %s", outputFormat)
	}
}

func outputTable(w io.Writer, results []*ProcessResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tKEY\tITEMS\tTOTAL\tFEDERAL TAXES\tWARNINGS")
	fmt.Fprintln(tw, "----\t---\t-----\t-----\t-------------\t--------")

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(tw, "%s\tERROR: %s\t\t\t\t\n", r.File, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%d\n",
			r.File,
			r.DocumentKey,
			r.Items,
			r.Total,
			r.FederalTaxes,
			len(r.Warnings),
		)
	}

	return tw.Flush()
}

// ProcessResult holds the result of processing a single file
type ProcessResult struct {
	File              string          `json:"file"`
	DocumentKey       string          `json:"document_key,omitempty"`
	Items             int             `json:"items,omitempty"`
	Total             string          `json:"total,omitempty"`
	FederalTaxes      string          `json:"federal_taxes,omitempty"`
	SelectiveFallback bool            `json:"selective_fallback,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Document          *model.Document `json:"document,omitempty"`
	Error             string          `json:"error,omitempty"`
}

func newProcessResult(r processor.Result) *ProcessResult {
	result := &ProcessResult{File: r.Name, Error: r.Error}
	if r.Document == nil {
		return result
	}
	doc := r.Document
	result.DocumentKey = doc.Key.String()
	result.Items = len(doc.Items)
	result.Total = doc.Totals.Document.StringFixed(2)
	result.FederalTaxes = doc.Taxes.TotalFederalTaxes.StringFixed(2)
	result.SelectiveFallback = doc.Taxes.SelectiveFallback
	result.Warnings = doc.Warnings
	if verbose {
		result.Document = doc
	}
	return result
}
