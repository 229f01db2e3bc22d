package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/processor"
	"github.com/rezonia/fiscal-xml/internal/signature/trust"
	sigxml "github.com/rezonia/fiscal-xml/internal/signature/xml"
	"github.com/rezonia/fiscal-xml/internal/taxcalc"
)

// newTaxClient builds the tax client with a Redis cache when REDIS_URL is set
// and an in-memory cache otherwise
func newTaxClient(m *metrics.Metrics) (*taxcalc.Client, *taxcalc.RedisCache, error) {
	var (
		cache taxcalc.Cache = taxcalc.NewMemoryCache()
		redis *taxcalc.RedisCache
	)
	if cfg.RedisURL != "" {
		rc, err := taxcalc.NewRedisCache(cfg.RedisURL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		cache, redis = rc, rc
	}

	client := taxcalc.NewClient(
		taxcalc.WithBaseURL(cfg.TaxAPI.URL),
		taxcalc.WithTimeout(cfg.TaxAPI.Timeout),
		taxcalc.WithMaxAttempts(cfg.TaxAPI.MaxRetries),
		taxcalc.WithItemWorkers(cfg.TaxAPI.ItemWorkers),
		taxcalc.WithProductClass(cfg.TaxAPI.ProductClass),
		taxcalc.WithUserAgent("fiscal-xml/"+version),
		taxcalc.WithCache(cache, cfg.CacheTTL),
		taxcalc.WithLogger(log),
		taxcalc.WithMetrics(m),
	)
	return client, redis, nil
}

func newProcessor(tc processor.TaxCalculator, m *metrics.Metrics) *processor.Processor {
	opts := []processor.Option{
		processor.WithLogger(log),
		processor.WithMetrics(m),
		processor.WithWorkers(cfg.MaxConcurrentJobs),
	}
	if tc != nil {
		opts = append(opts, processor.WithTaxClient(tc))
	}
	return processor.New(opts...)
}

func newVerifier() (*sigxml.Verifier, error) {
	store, err := trust.LoadBundle(cfg.TrustBundle)
	if err != nil {
		return nil, err
	}
	if !store.Empty() {
		log.Info("trust bundle loaded", zap.String("path", cfg.TrustBundle), zap.Int("roots", store.Len()))
	}
	return sigxml.NewVerifier(store, sigxml.WithLogger(log)), nil
}

// collectFiles expands files, globs and directories into the XML files they name
func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}

		if len(matches) == 0 {
			info, err := os.Stat(arg)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", arg)
			}
			if !info.IsDir() {
				files = append(files, arg)
				continue
			}
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				continue
			}
			if !info.IsDir() {
				if isXMLFile(match) {
					files = append(files, match)
				}
				continue
			}
			err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isXMLFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isXMLFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}

// readInputs loads files as batch inputs
func readInputs(files []string) ([]processor.Input, error) {
	inputs := make([]processor.Input, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		inputs = append(inputs, processor.Input{Name: file, Data: data})
	}
	return inputs, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
