// Package metrics exposes Prometheus collectors for the risk pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pathpredict"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the domain collectors on a dedicated registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	plans              *prometheus.CounterVec
	scans              *prometheus.CounterVec
	candidates         prometheus.Counter
	segmentSeverity    prometheus.Histogram
	segmentLevels      *prometheus.CounterVec
	estimates          *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
	refreshes          *prometheus.CounterVec
	duration           *prometheus.HistogramVec
}

// New creates the collectors and registers them, along with the Go and
// process collectors, on a new registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		plans: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "route_plans_total", Help: "Route risk plans by outcome."},
			[]string{"outcome"},
		),
		scans: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "departure_scans_total", Help: "Departure window scans by outcome."},
			[]string{"outcome"},
		),
		candidates: prometheus.NewCounter(
			prometheus.CounterOpts{Namespace: namespace, Name: "departure_candidates_total", Help: "Departure candidates evaluated."},
		),
		segmentSeverity: prometheus.NewHistogram(
			prometheus.HistogramOpts{Namespace: namespace, Name: "segment_severity", Help: "Severity score per scored segment.", Buckets: []float64{1, 5, 10, 20, 35, 50, 75, 100}},
		),
		segmentLevels: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "segment_risk_levels_total", Help: "Scored segments by risk level."},
			[]string{"level"},
		),
		estimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "weather_estimates_total", Help: "Weather estimates by method."},
			[]string{"method"},
		),
		collaboratorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "collaborator_failures_total", Help: "Failed collaborator calls."},
			[]string{"collaborator"},
		),
		refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "forecast_refreshes_total", Help: "Forecast cache refreshes by outcome."},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: namespace, Name: "operation_duration_seconds", Help: "Pipeline operation duration in seconds.", Buckets: prometheus.DefBuckets},
			[]string{"operation"},
		),
	}

	m.Registry.MustRegister(
		m.plans,
		m.scans,
		m.candidates,
		m.segmentSeverity,
		m.segmentLevels,
		m.estimates,
		m.collaboratorErrors,
		m.refreshes,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObservePlan records a route plan outcome.
func (m *Metrics) ObservePlan(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.plans.WithLabelValues(outcome(err)).Inc()
	m.duration.WithLabelValues("plan_route").Observe(elapsed.Seconds())
}

// ObserveScan records a departure scan outcome and its candidate count.
func (m *Metrics) ObserveScan(err error, candidates int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome(err)).Inc()
	m.candidates.Add(float64(candidates))
	m.duration.WithLabelValues("recommend_departure").Observe(elapsed.Seconds())
}

// ObserveSegment records a scored segment.
func (m *Metrics) ObserveSegment(severity float64, level string) {
	if m == nil {
		return
	}
	m.segmentSeverity.Observe(severity)
	m.segmentLevels.WithLabelValues(level).Inc()
}

// ObserveEstimate records the method used for a weather estimate.
func (m *Metrics) ObserveEstimate(method string) {
	if m == nil {
		return
	}
	m.estimates.WithLabelValues(method).Inc()
}

// CollaboratorFailed records a failed call to routing, weather or geocoding.
func (m *Metrics) CollaboratorFailed(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorErrors.WithLabelValues(collaborator).Inc()
}

// ObserveRefresh records a forecast refresh outcome.
func (m *Metrics) ObserveRefresh(err error) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
