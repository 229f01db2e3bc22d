package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/fiscal-xml/internal/signature"
	sigxml "github.com/rezonia/fiscal-xml/internal/signature/xml"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify NF-e digital signatures",
	Long: `Verify the XMLDSig signature of NF-e files.

Verifies:
  - Digest and signature value over infNFe
  - Certificate validity at the issue date (warning)
  - Certificate chain to the trusted roots given by --ca-file or TRUST_BUNDLE
    (skipped with a warning when no roots are configured)
  - Signer information (name, CNPJ/CPF, issuer)

Examples:
  fiscal-xml verify nota.xml
  fiscal-xml verify --ca-file icp-brasil.pem notas/
  fiscal-xml verify -f table nota.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	verifier, err := newVerifier()
	if err != nil {
		return fmt.Errorf("failed to load trust bundle: %w", err)
	}

	results := make([]*VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		printVerbose("Verifying: %s\n", file)
		result := verifyFile(commandContext(cmd), verifier, file)
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
			printVerifyResult(r)
		}
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}
	return nil
}

func printVerifyResult(r *VerifyResult) {
	statusIcon := "✓"
	statusText := "VALID"
	if !r.Valid {
		statusIcon = "✗"
		statusText = "INVALID"
	}
	fmt.Printf("%s %s: %s\n", statusIcon, r.File, statusText)

	if r.DocumentKey != "" {
		fmt.Printf("  Key:    %s\n", r.DocumentKey)
	}
	if r.Signer != nil {
		fmt.Printf("  Signer: %s\n", r.Signer.Name)
		if r.Signer.TaxID != "" {
			fmt.Printf("  TaxID:  %s\n", r.Signer.TaxID)
		}
		if r.Signer.Issuer != "" {
			fmt.Printf("  Issuer: %s\n", r.Signer.Issuer)
		}
		fmt.Printf("  Valid:  %s to %s\n", r.Signer.ValidFrom.Format(time.DateOnly), r.Signer.ValidTo.Format(time.DateOnly))
	}

	if r.SignatureFound {
		fmt.Printf("  Signature:  %s\n", mark(r.SignatureValid))
		chain := mark(r.CertChainValid)
		if !r.ChainChecked {
			chain = "- (no trusted roots)"
		}
		fmt.Printf("  Cert Chain: %s\n", chain)
	}

	for _, e := range r.Errors {
		fmt.Printf("  ✗ %s\n", e)
	}
	for _, w := range r.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

func verifyFile(ctx context.Context, verifier *sigxml.Verifier, filePath string) *VerifyResult {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	data, err := os.ReadFile(filePath)
	if err != nil {
		res := signature.NewVerificationResult()
		res.AddError(fmt.Sprintf("failed to read file: %v", err))
		return &VerifyResult{File: filePath, VerificationResult: res}
	}

	res, err := verifier.Verify(ctx, data)
	if res == nil {
		res = signature.NewVerificationResult()
		res.AddError(err.Error())
	}
	return &VerifyResult{File: filePath, VerificationResult: res}
}

// VerifyResult holds the result of verifying a single file
type VerifyResult struct {
	File string `json:"file"`
	*signature.VerificationResult
}
