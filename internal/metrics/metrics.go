// Package metrics provides Prometheus metrics for sync cycles.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the cycle metrics on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	CyclesTotal     *prometheus.CounterVec
	DeltasTotal     *prometheus.CounterVec
	EdgesTotal      *prometheus.CounterVec
	DiagnosticTotal *prometheus.CounterVec
	PushErrors      *prometheus.CounterVec
	TrackedCIs      *prometheus.GaugeVec
	CycleDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers the metrics
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmdbsync",
			Name:      "cycles_total",
			Help:      "Polling cycles run, by source and outcome",
		},
		[]string{"source", "outcome"},
	)
	m.DeltasTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmdbsync",
			Name:      "deltas_total",
			Help:      "CI deltas emitted",
		},
		[]string{"source"},
	)
	m.EdgesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmdbsync",
			Name:      "edges_total",
			Help:      "Relationship edges built",
		},
		[]string{"source"},
	)
	m.DiagnosticTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmdbsync",
			Name:      "diagnostics_total",
			Help:      "Skipped rows and instances, by diagnostic kind",
		},
		[]string{"kind"},
	)
	m.PushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cmdbsync",
			Name:      "push_errors_total",
			Help:      "Failed deliveries to the push sink",
		},
		[]string{"source"},
	)
	m.TrackedCIs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cmdbsync",
			Name:      "tracked_cis",
			Help:      "CIs with persisted attribute state",
		},
		[]string{"source"},
	)
	m.CycleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cmdbsync",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of the in-memory part of a cycle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"source"},
	)

	m.registry.MustRegister(
		m.CyclesTotal,
		m.DeltasTotal,
		m.EdgesTotal,
		m.DiagnosticTotal,
		m.PushErrors,
		m.TrackedCIs,
		m.CycleDuration,
	)
	return m
}

// ObserveCycle records one completed cycle
func (m *Metrics) ObserveCycle(source string, deltas, edges, tracked int, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(source, "ok").Inc()
	m.DeltasTotal.WithLabelValues(source).Add(float64(deltas))
	m.EdgesTotal.WithLabelValues(source).Add(float64(edges))
	m.TrackedCIs.WithLabelValues(source).Set(float64(tracked))
	m.CycleDuration.WithLabelValues(source).Observe(d.Seconds())
}

// CycleFailed records a cycle that could not run
func (m *Metrics) CycleFailed(source string) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(source, "error").Inc()
}

// Diagnostic counts one diagnostic
func (m *Metrics) Diagnostic(kind string) {
	if m == nil {
		return
	}
	m.DiagnosticTotal.WithLabelValues(kind).Inc()
}

// PushFailed counts a failed delivery
func (m *Metrics) PushFailed(source string) {
	if m == nil {
		return
	}
	m.PushErrors.WithLabelValues(source).Inc()
}

// Registry returns the registry holding the metrics
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
