package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/internal/weather"
)

func TestNewMetrics(t *testing.T) {
	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
}

func TestMetrics_Middleware(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	metrics, err := middleware.NewMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(metrics.Middleware())
	r.Get("/v1/ops/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post("/v1/routes:plan", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{method: http.MethodGet, path: "/v1/ops/health", want: http.StatusOK},
		{method: http.MethodPost, path: "/v1/routes:plan", want: http.StatusServiceUnavailable},
		{method: http.MethodGet, path: "/v1/unknown", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
		assert.Equal(t, tt.want, w.Code, tt.path)
	}

	counts := make(map[string]int64)
	for _, dp := range collect(t, reader, "http.server.request.total").DataPoints {
		route, _ := dp.Attributes.Value("http.route")
		counts[route.AsString()] += dp.Value
	}

	assert.Equal(t, int64(1), counts["/v1/ops/health"])
	assert.Equal(t, int64(1), counts["/v1/routes:plan"])
	assert.Equal(t, int64(1), counts["unmatched"])
	assert.NotContains(t, counts, "/v1/unknown")
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				sum, ok := m.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				return sum
			}
		}
	}
	t.Fatalf("metric %s not collected", name)
	return metricdata.Sum[int64]{}
}

func TestProviderMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	pm, err := middleware.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordRequest("open-meteo", "/v1/forecast", 120*time.Millisecond, nil)
	pm.RecordRequest("openrouteservice", "/v2/directions/driving-car/geojson", time.Second, errors.New("upstream 502"))
	pm.RecordCacheHit("open-meteo", "forecast")
	pm.RecordCacheHit("open-meteo", "forecast")
	pm.RecordCacheMiss("open-meteo", "forecast")

	failed := make(map[string]bool)
	for _, dp := range collect(t, reader, "provider.request.total").DataPoints {
		name, _ := dp.Attributes.Value("provider.name")
		errAttr, _ := dp.Attributes.Value("error")
		failed[name.AsString()] = errAttr.AsBool()
	}
	assert.Equal(t, map[string]bool{"open-meteo": false, "openrouteservice": true}, failed)

	results := make(map[string]int64)
	for _, dp := range collect(t, reader, "provider.cache.lookups").DataPoints {
		result, _ := dp.Attributes.Value("cache.result")
		results[result.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"hit": 2, "miss": 1}, results)
}

var (
	_ resilience.RequestObserver = (*middleware.ProviderMetrics)(nil)
	_ weather.CacheObserver      = (*middleware.ProviderMetrics)(nil)
)
