package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/metrics"
	"github.com/rezonia/fiscal-xml/internal/server"
)

var (
	serverAddr   string
	serverDebug  bool
	readTimeout  time.Duration
	writeTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for NF-e documents.

The API provides endpoints for:
  - POST /api/v1/xml/validate           - Validate layout structure
  - POST /api/v1/xml/read               - Parse into a document
  - POST /api/v1/xml/summary            - Quick summary
  - POST /api/v1/xml/batch-summary      - Summaries of many files (multipart "files")
  - POST /api/v1/xml/signature          - Verify the digital signature
  - POST /api/v1/documents/process      - Parse and regenerate the XML
  - POST /api/v1/documents/recalculate  - Recalculate taxes and regenerate
  - GET  /health, /ready, /metrics

Uploads are sent as the raw body or as multipart field "file".

Examples:
  # Start server on the address from HTTP_ADDR (default :8080)
  fiscal-xml serve

  # Start on a custom port in debug mode
  fiscal-xml serve --address :9090 --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().DurationVar(&readTimeout, "read-timeout", 30*time.Second, "HTTP read timeout")
	serveCmd.Flags().DurationVar(&writeTimeout, "write-timeout", 5*time.Minute, "HTTP write timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	defer func() { _ = log.Sync() }()

	if serverAddr == "" {
		serverAddr = cfg.HTTPAddr
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, metrics.Config{ServiceName: cfg.ServiceName, Environment: cfg.Environment})

	taxClient, redis, err := newTaxClient(m)
	if err != nil {
		return err
	}
	verifier, err := newVerifier()
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithProcessor(newProcessor(taxClient, m)),
		server.WithVerifier(verifier),
		server.WithLogger(log),
		server.WithGatherer(reg),
	}
	if redis != nil {
		defer redis.Close()
		opts = append(opts, server.WithReadinessCheck("redis", redis.Ping))
	}

	srv := server.NewServer(&server.Config{
		Address:       serverAddr,
		Version:       version,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		MaxFileSize:   cfg.MaxFileSize,
		EnableMetrics: cfg.PrometheusEnabled,
		Debug:         serverDebug,
	}, opts...)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting server",
		zap.String("address", serverAddr),
		zap.String("tax_api", cfg.TaxAPI.URL),
		zap.Bool("redis_cache", redis != nil),
		zap.Bool("metrics", cfg.PrometheusEnabled),
		zap.String("environment", cfg.Environment),
	)
	return srv.Run(ctx)
}
