package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pathpredict/pathpredict/internal/api/middleware"

// instruments collects the first error from a run of instrument
// constructors so callers can check once.
type instruments struct {
	meter metric.Meter
	err   error
}

func (in *instruments) histogram(name, desc, unit string) metric.Float64Histogram {
	h, err := in.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit(unit))
	in.err = errors.Join(in.err, err)
	return h
}

func (in *instruments) sizes(name, desc string) metric.Int64Histogram {
	h, err := in.meter.Int64Histogram(name, metric.WithDescription(desc), metric.WithUnit("By"))
	in.err = errors.Join(in.err, err)
	return h
}

func (in *instruments) counter(name, desc, unit string) metric.Int64Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	in.err = errors.Join(in.err, err)
	return c
}

func (in *instruments) gauge(name, desc, unit string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	in.err = errors.Join(in.err, err)
	return g
}

// Metrics holds the HTTP server instruments.
type Metrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics creates the HTTP server instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	in := &instruments{meter: otel.Meter(meterName)}
	m := &Metrics{
		duration: in.histogram("http.server.request.duration", "Duration of HTTP server requests", "s"),
		requests: in.counter("http.server.request.total", "HTTP server requests", "{request}"),
		inFlight: in.gauge("http.server.requests_in_flight", "HTTP requests being served", "{request}"),
		size:     in.sizes("http.server.response.size", "Size of HTTP response bodies"),
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

// Middleware records request count, latency and response size per route
// pattern. Labelling by pattern keeps coordinates in paths out of the
// attribute set.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			method := attribute.String("http.request.method", r.Method)

			m.inFlight.Add(ctx, 1, metric.WithAttributes(method))
			defer m.inFlight.Add(ctx, -1, metric.WithAttributes(method))

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				method,
				attribute.String("http.route", routePattern(r)),
				attribute.Int("http.response.status_code", rec.status),
				attribute.String("http.response.status_class", strconv.Itoa(rec.status/100)+"xx"),
			)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			m.requests.Add(ctx, 1, attrs)
			m.size.Record(ctx, rec.written, attrs)
		})
	}
}

// ProviderMetrics records collaborator calls and forecast cache lookups. It
// satisfies resilience.RequestObserver and weather.CacheObserver.
type ProviderMetrics struct {
	duration metric.Float64Histogram
	requests metric.Int64Counter
	lookups  metric.Int64Counter
}

// NewProviderMetrics creates the collaborator instruments on the global
// meter provider.
func NewProviderMetrics() (*ProviderMetrics, error) {
	in := &instruments{meter: otel.Meter(meterName)}
	m := &ProviderMetrics{
		duration: in.histogram("provider.request.duration", "Duration of collaborator calls", "s"),
		requests: in.counter("provider.request.total", "Collaborator calls", "{request}"),
		lookups:  in.counter("provider.cache.lookups", "Forecast cache lookups by result", "{lookup}"),
	}
	if in.err != nil {
		return nil, in.err
	}
	return m, nil
}

// RecordRequest records one collaborator call. Failed calls carry
// error=true.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
		attribute.Bool("error", err != nil),
	)
	ctx := context.Background()
	m.duration.Record(ctx, duration.Seconds(), attrs)
	m.requests.Add(ctx, 1, attrs)
}

func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.lookup(provider, operation, "hit")
}

func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.lookup(provider, operation, "miss")
}

func (m *ProviderMetrics) lookup(provider, operation, result string) {
	m.lookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
		attribute.String("cache.result", result),
	))
}
