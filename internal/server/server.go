package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rezonia/fiscal-xml/internal/processor"
	sigxml "github.com/rezonia/fiscal-xml/internal/signature/xml"
)

// DefaultMaxFileSize is the upload limit when Config.MaxFileSize is zero
const DefaultMaxFileSize = 10 << 20

// Config holds server configuration
type Config struct {
	Address        string
	Version        string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxFileSize    int64
	EnableMetrics  bool
	Debug          bool
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	config    *Config
	router    *gin.Engine
	processor *processor.Processor
	verifier  *sigxml.Verifier
	log       *zap.Logger
	gatherer  prometheus.Gatherer
	checks    map[string]ReadinessCheck
}

// Option configures a Server
type Option func(*Server)

// WithProcessor sets the document processor
func WithProcessor(p *processor.Processor) Option {
	return func(s *Server) { s.processor = p }
}

// WithVerifier sets the signature verifier
func WithVerifier(v *sigxml.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

// WithLogger sets the request and handler logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithGatherer sets the registry served on /metrics
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithReadinessCheck adds a named check to /ready
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new API server
func NewServer(config *Config, opts ...Option) *Server {
	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = DefaultMaxFileSize
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 2 * time.Minute
	}

	s := &Server{
		config:   config,
		log:      zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
		checks:   make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.processor == nil {
		s.processor = processor.New(processor.WithLogger(s.log))
	}
	if s.verifier == nil {
		s.verifier = sigxml.NewVerifier(nil, sigxml.WithLogger(s.log))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	router.MaxMultipartMemory = config.MaxFileSize
	s.router = router

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ready", s.handleReady)
	if s.config.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		xml := v1.Group("/xml")
		xml.POST("/validate", s.handleValidate)
		xml.POST("/read", s.handleRead)
		xml.POST("/summary", s.handleSummary)
		xml.POST("/batch-summary", s.handleBatchSummary)
		xml.POST("/signature", s.handleSignature)

		docs := v1.Group("/documents")
		docs.POST("/process", s.handleProcess)
		docs.POST("/recalculate", s.handleRecalculate)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("address", s.config.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.config.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			s.log.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, ReadyResponse{
		Status: state,
		Time:   time.Now().UTC().Format(time.RFC3339),
		Checks: results,
	})
}
