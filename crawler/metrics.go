package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RowsTotal       prometheus.Counter
	RetriesTotal    prometheus.Counter
	EmptyTotal      prometheus.Counter
	ProbesTotal     *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_rows_total",
			Help: "Total number of rows accumulated across units.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_unit_retries_total",
			Help: "Total number of unit-level retries performed.",
		},
	)
	empties := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_empty_responses_total",
			Help: "Total number of empty page responses observed.",
		},
	)
	probes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_verification_probes_total",
			Help: "Verification probes by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_errors_total",
			Help: "Total number of crawl errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, rows, retries, empties, probes, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RowsTotal:       rows,
		RetriesTotal:    retries,
		EmptyTotal:      empties,
		ProbesTotal:     probes,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests counter for a phase.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddRows increments the rows counter.
func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsTotal.Add(float64(n))
}

// IncRetries increments the unit retry counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncEmpty increments the empty response counter.
func (m *Metrics) IncEmpty() {
	if m == nil {
		return
	}
	m.EmptyTotal.Inc()
}

// IncProbe increments the verification probe counter for an outcome label.
func (m *Metrics) IncProbe(outcome string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
