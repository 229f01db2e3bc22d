package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/config"
	"github.com/rezonia/fiscal-xml/internal/logger"
)

var (
	version = "0.1.0"

	cfg config.Config
	log = zap.NewNop()

	// Global flags
	verbose      bool
	outputFormat string
	logLevel     string
	taxAPIURL    string
	trustBundle  string
)

var rootCmd = &cobra.Command{
	Use:   "fiscal-xml",
	Short: "Read, validate and update Brazilian NF-e XML documents",
	Long: `fiscal-xml reads NF-e 4.00 documents, validates their layout, recalculates
IBS, CBS and Selective Tax through the tax calculation service, and rewrites the
tax figures of the XML while leaving the rest of the document untouched.

Configuration is read from the environment and an optional .env file
(TAX_API_URL, REDIS_URL, TRUST_BUNDLE, LOG_LEVEL, ...). Flags take precedence.

Examples:
  # Parse and regenerate a document
  fiscal-xml process nota.xml

  # Recalculate taxes and write the updated XML next to the results
  fiscal-xml process notas/ --recalculate --write-xml out/

  # Validate documents
  fiscal-xml validate *.xml

  # Verify the digital signature against the ICP-Brasil roots
  fiscal-xml verify --ca-file icp-brasil.pem nota.xml`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (env: LOG_LEVEL, default: error for commands, info for serve)")
	rootCmd.PersistentFlags().StringVar(&taxAPIURL, "tax-api-url", "", "Tax calculation service base URL (env: TAX_API_URL)")
	rootCmd.PersistentFlags().StringVar(&trustBundle, "ca-file", "", "PEM bundle of trusted root certificates (env: TRUST_BUNDLE)")
}

// initConfig loads configuration and applies flag overrides
func initConfig(cmd *cobra.Command, _ []string) error {
	cfg = config.Load()
	if taxAPIURL != "" {
		cfg.TaxAPI.URL = taxAPIURL
	}
	if trustBundle != "" {
		cfg.TrustBundle = trustBundle
	}

	level := logLevel
	if level == "" {
		level = "error"
		if cmd.Name() == "serve" {
			level = cfg.LogLevel
		}
	}
	l, err := logger.New(level)
	if err != nil {
		return err
	}
	log = l
	return nil
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
