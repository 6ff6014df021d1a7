// Package metrics provides Prometheus metrics collection for the
// discovery core, grounded on r3e-network-service_layer's
// infrastructure/metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the discovery core.
type Metrics struct {
	// HTTP metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Discovery run metrics (C6)
	DiscoveryRunsTotal    *prometheus.CounterVec
	DiscoveryRunDuration  *prometheus.HistogramVec
	AutomationsFoundTotal *prometheus.CounterVec

	// Sub-method error metrics (§7)
	CollectorErrorsTotal *prometheus.CounterVec

	// Credential refresh metrics (C1)
	CredentialRefreshTotal *prometheus.CounterVec

	// Progress Bus metrics (C7)
	ProgressEventsDroppedTotal *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered against
// the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_http_requests_total",
				Help: "Total number of HTTP requests served by the discovery API.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "discovery_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed.",
			},
		),
		DiscoveryRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_runs_total",
				Help: "Total number of discovery sessions, by platform_type and terminal status.",
			},
			[]string{"platform_type", "status"},
		),
		DiscoveryRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "discovery_run_duration_seconds",
				Help:    "End-to-end discovery session duration in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"platform_type"},
		),
		AutomationsFoundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_automations_found_total",
				Help: "Total number of automations normalized and persisted, by platform_type and automation_type.",
			},
			[]string{"platform_type", "automation_type"},
		),
		CollectorErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_collector_errors_total",
				Help: "Total number of Platform Collector sub-method errors, by platform_type, source_method, and error kind.",
			},
			[]string{"platform_type", "source_method", "kind"},
		),
		CredentialRefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_credential_refresh_total",
				Help: "Total number of OAuth credential refresh attempts, by platform_type and outcome.",
			},
			[]string{"platform_type", "outcome"},
		),
		ProgressEventsDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "discovery_progress_events_dropped_total",
				Help: "Total number of non-terminal Progress Bus events dropped for a slow subscriber, by kind.",
			},
			[]string{"kind"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.DiscoveryRunsTotal,
			m.DiscoveryRunDuration,
			m.AutomationsFoundTotal,
			m.CollectorErrorsTotal,
			m.CredentialRefreshTotal,
			m.ProgressEventsDroppedTotal,
		)
	}

	return m
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDiscoveryRun records one completed discovery session.
func (m *Metrics) RecordDiscoveryRun(platformType, status string, duration time.Duration) {
	m.DiscoveryRunsTotal.WithLabelValues(platformType, status).Inc()
	m.DiscoveryRunDuration.WithLabelValues(platformType).Observe(duration.Seconds())
}

// RecordAutomationFound records one normalized automation persisted.
func (m *Metrics) RecordAutomationFound(platformType, automationType string) {
	m.AutomationsFoundTotal.WithLabelValues(platformType, automationType).Inc()
}

// RecordCollectorError records one sub-method error surfaced by a
// Platform Collector (§7).
func (m *Metrics) RecordCollectorError(platformType, sourceMethod, kind string) {
	m.CollectorErrorsTotal.WithLabelValues(platformType, sourceMethod, kind).Inc()
}

// RecordCredentialRefresh records one OAuth refresh attempt.
func (m *Metrics) RecordCredentialRefresh(platformType, outcome string) {
	m.CredentialRefreshTotal.WithLabelValues(platformType, outcome).Inc()
}

// RecordProgressEventDropped records one best-effort Progress Bus event
// dropped for a slow subscriber.
func (m *Metrics) RecordProgressEventDropped(kind string) {
	m.ProgressEventsDroppedTotal.WithLabelValues(kind).Inc()
}
