// Package metrics holds the Prometheus collectors of the document pipeline
// and the tax calculation client. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCacheHit = "cache_hit"
	OutcomeFallback = "fallback"
)

// Config carries the constant labels attached to every collector
type Config struct {
	ServiceName string
	Environment string
}

// Metrics records pipeline and integration signals
type Metrics struct {
	documents         *prometheus.CounterVec
	documentDuration  *prometheus.HistogramVec
	taxCalls          *prometheus.CounterVec
	taxCallDuration   *prometheus.HistogramVec
	taxRetries        *prometheus.CounterVec
	selectiveFallback prometheus.Counter
}

// New creates the collectors and registers them on registerer
// (prometheus.DefaultRegisterer when nil)
func New(registerer prometheus.Registerer, cfg Config) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "fiscal-xml"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &Metrics{
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fiscalxml_documents_processed_total",
			Help:        "Documents handled by the pipeline by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
		documentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fiscalxml_document_duration_seconds",
			Help:        "Time spent per document operation.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		taxCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fiscalxml_tax_service_calls_total",
			Help:        "Calls to the tax calculation service by operation and outcome.",
			ConstLabels: constLabels,
		}, []string{"operation", "outcome"}),
		taxCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "fiscalxml_tax_service_call_duration_seconds",
			Help:        "Tax calculation service latency including retries.",
			Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"operation"}),
		taxRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "fiscalxml_tax_service_retries_total",
			Help:        "Retried attempts against the tax calculation service.",
			ConstLabels: constLabels,
		}, []string{"operation"}),
		selectiveFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "fiscalxml_selective_tax_fallback_total",
			Help:        "Selective tax results assumed zero because the service call failed.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.documents,
		m.documentDuration,
		m.taxCalls,
		m.taxCallDuration,
		m.taxRetries,
		m.selectiveFallback,
	)
	return m
}

// ObserveDocument counts one document operation and its duration
func (m *Metrics) ObserveDocument(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(operation, outcome).Inc()
	m.documentDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveTaxCall counts one logical call to the tax service
func (m *Metrics) ObserveTaxCall(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.taxCalls.WithLabelValues(operation, outcome).Inc()
	if outcome != OutcomeCacheHit {
		m.taxCallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

// IncRetry counts a retried attempt
func (m *Metrics) IncRetry(operation string) {
	if m == nil {
		return
	}
	m.taxRetries.WithLabelValues(operation).Inc()
}

// IncSelectiveFallback counts a selective tax zero substituted for a failure
func (m *Metrics) IncSelectiveFallback() {
	if m == nil {
		return
	}
	m.selectiveFallback.Inc()
}
