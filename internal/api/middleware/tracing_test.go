package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/pathpredict/pathpredict/internal/api/middleware"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return sr
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func serveTraced(t *testing.T, sr *tracetest.SpanRecorder, h http.Handler, req *http.Request) sdktrace.ReadOnlySpan {
	t.Helper()
	h.ServeHTTP(httptest.NewRecorder(), req)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	return spans[0]
}

func TestTracing_ServerSpan(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("pathpredict-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, trace.SpanFromContext(r.Context()).SpanContext().IsValid())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/geocoding/search?q=52.37,4.90", http.NoBody)
	span := serveTraced(t, sr, handler, req)

	assert.Equal(t, "GET /v1/geocoding/search", span.Name())
	assert.Equal(t, trace.SpanKindServer, span.SpanKind())

	status, ok := spanAttr(span, "http.response.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(http.StatusNotFound), status.AsInt64())

	_, hasQuery := spanAttr(span, "url.query")
	assert.False(t, hasQuery, "query strings carry locations and must not be recorded")
	assert.Equal(t, codes.Unset, span.Status().Code)
}

func TestTracing_NamesSpanByRoutePattern(t *testing.T) {
	sr := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(middleware.Tracing("pathpredict-api"))
	r.Post("/v1/{action}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	span := serveTraced(t, sr, r, httptest.NewRequest(http.MethodPost, "/v1/routes:plan", http.NoBody))

	assert.Equal(t, "POST /v1/{action}", span.Name())
	route, ok := spanAttr(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/v1/{action}", route.AsString())
}

func TestTracing_ContinuesCallerTrace(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("pathpredict-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("traceparent", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	span := serveTraced(t, sr, handler, req)

	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", span.SpanContext().TraceID().String())
	assert.Equal(t, "b7ad6b7169203331", span.Parent().SpanID().String())
}

func TestTracing_ServerErrorMarksSpan(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.Tracing("pathpredict-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	span := serveTraced(t, sr, handler, httptest.NewRequest(http.MethodPost, "/v1/departures:recommend", http.NoBody))

	assert.Equal(t, codes.Error, span.Status().Code)
	assert.Equal(t, "Service Unavailable", span.Status().Description)
}

func TestTracing_RecordsRequestID(t *testing.T) {
	sr := setupTestTracer(t)

	handler := middleware.RequestID(middleware.Tracing("pathpredict-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "lb-4411")
	span := serveTraced(t, sr, handler, req)

	id, ok := spanAttr(span, "request.id")
	require.True(t, ok)
	assert.Equal(t, "lb-4411", id.AsString())
}
