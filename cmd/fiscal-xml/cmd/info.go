package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-xml/internal/model"
)

var infoCmd = &cobra.Command{
	Use:   "info [files...]",
	Short: "Show a quick summary of NF-e files",
	Long: `Display a summary of NF-e files without full parsing.

Shows key, type, series and number, issue date, emitter and recipient, item
count, total value and whether the layout structure is valid. Unreadable files
are reported, not skipped.

Examples:
  fiscal-xml info nota.xml
  fiscal-xml info notas/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found")
	}

	inputs, err := readInputs(files)
	if err != nil {
		return err
	}
	summaries := newProcessor(nil, nil).SummarizeBatch(commandContext(cmd), inputs)

	if outputFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	}

	for _, s := range summaries {
		printSummary(s)
		fmt.Println()
	}
	return nil
}

func printSummary(s model.Summary) {
	fmt.Printf("File: %s\n", s.FileName)
	if s.Error != "" {
		fmt.Printf("  Error: %s\n", s.Error)
		return
	}

	fmt.Printf("  Key:       %s\n", s.DocumentKey)
	fmt.Printf("  Type:      %s\n", s.DocumentType)
	fmt.Printf("  Series:    %s  Number: %s\n", s.Series, s.Number)
	if s.IssueDate != "" {
		fmt.Printf("  Issued:    %s\n", s.IssueDate)
	}
	fmt.Printf("  Emitter:   %s (%s)\n", s.EmitterName, s.EmitterTaxID)
	if s.RecipientName != "" || s.RecipientTaxID != "" {
		fmt.Printf("  Recipient: %s (%s)\n", s.RecipientName, s.RecipientTaxID)
	}
	fmt.Printf("  Items:     %d\n", s.ItemCount)
	fmt.Printf("  Total:     %s\n", s.TotalValue.StringFixed(2))
	fmt.Printf("  Structure: %s\n", structureLabel(s.ValidStructure))
	for _, w := range s.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
}

func structureLabel(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

