// Package metrics provides Prometheus metrics for the lcarun client and stub server.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRPCError = "rpc_error"
	OutcomeFailed   = "failed"
)

// Manager manages all Prometheus metrics for the lcarun binaries.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// IPC client metrics
	rpcRequests        *prometheus.CounterVec
	rpcRequestDuration *prometheus.HistogramVec

	// Calculation lifecycle
	calculationWait  prometheus.Histogram
	calculationPolls prometheus.Counter
	resultDisposals  *prometheus.CounterVec

	// Lookup and extraction
	resolutions  *prometheus.CounterVec
	impactAmount *prometheus.GaugeVec

	// Stub server HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	stubCalculations    prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "lcarun",
		subsystem:        "client",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Default returns the process-wide manager backed by the custom registry.
func Default() *Manager {
	return globalManager
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.rpcRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "rpc_requests_total",
			Help:        "Total number of JSON-RPC calls by method and outcome",
			ConstLabels: m.constLabels,
		},
		[]string{"method", "outcome"},
	)

	m.rpcRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "rpc_request_duration_milliseconds",
			Help:        "JSON-RPC round trip time in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"method"},
	)

	m.calculationWait = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "calculation_wait_milliseconds",
		Help:        "Time spent waiting for a calculation result to become ready",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.calculationPolls = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "calculation_polls_total",
		Help:        "Total number of result state polls",
		ConstLabels: m.constLabels,
	})

	m.resultDisposals = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "result_disposals_total",
			Help:        "Result handles released, by outcome",
			ConstLabels: m.constLabels,
		},
		[]string{"outcome"},
	)

	m.resolutions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "resolutions_total",
			Help:        "Name resolutions by entity kind and the fallback tier that produced them",
			ConstLabels: m.constLabels,
		},
		[]string{"kind", "tier"},
	)

	m.impactAmount = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "impact_amount",
			Help:        "Last extracted total impact amount per impact category",
			ConstLabels: m.constLabels,
		},
		[]string{"category", "unit"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   "stub",
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests served by the stub by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   "stub",
			Name:        "http_request_duration_milliseconds",
			Help:        "Stub HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.stubCalculations = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   "stub",
		Name:        "calculations_total",
		Help:        "Calculations scheduled by the stub server",
		ConstLabels: m.constLabels,
	})
}

// RecordRPC records one JSON-RPC call.
func (m *Manager) RecordRPC(method, outcome string, latencyMs float64) {
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
	m.rpcRequestDuration.WithLabelValues(method).Observe(latencyMs)
}

// RecordCalculationWait records the time a calculation took to become ready.
func (m *Manager) RecordCalculationWait(latencyMs float64) {
	m.calculationWait.Observe(latencyMs)
}

// RecordCalculationPoll increments the result state poll counter.
func (m *Manager) RecordCalculationPoll() {
	m.calculationPolls.Inc()
}

// RecordDisposal records a result handle release.
func (m *Manager) RecordDisposal(outcome string) {
	m.resultDisposals.WithLabelValues(outcome).Inc()
}

// RecordResolution records which tier resolved a process or method.
func (m *Manager) RecordResolution(kind, tier string) {
	m.resolutions.WithLabelValues(kind, tier).Inc()
}

// SetImpactAmount publishes an extracted impact amount.
func (m *Manager) SetImpactAmount(category, unit string, amount float64) {
	m.impactAmount.WithLabelValues(category, unit).Set(amount)
}

// RecordHTTPRequest records one request served by the stub.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordStubCalculation increments the stub calculation counter.
func (m *Manager) RecordStubCalculation() {
	m.stubCalculations.Inc()
}

// RecordHTTPRequest records one stub request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// RecordStubCalculation increments the stub calculation counter on the global manager.
func RecordStubCalculation() {
	globalManager.RecordStubCalculation()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// WriteTextfile writes the current state of the custom registry in the
// text exposition format, suitable for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	return writeTextfile(path, customRegistry)
}

func writeTextfile(path string, g prometheus.Gatherer) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrExportFailed)
	}
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	return nil
}
