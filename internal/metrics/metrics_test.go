package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/metrics"
)

func TestMetrics_Handler(t *testing.T) {
	m := metrics.New()

	m.ObservePlan(nil, 120*time.Millisecond)
	m.ObservePlan(errors.New("boom"), time.Millisecond)
	m.ObserveScan(nil, 12, time.Second)
	m.ObserveSegment(3.6, "safe")
	m.ObserveSegment(42.6, "moderate")
	m.ObserveEstimate("trend")
	m.CollaboratorFailed("weather")
	m.ObserveRefresh(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `pathpredict_route_plans_total{outcome="success"} 1`)
	assert.Contains(t, text, `pathpredict_route_plans_total{outcome="error"} 1`)
	assert.Contains(t, text, `pathpredict_departure_scans_total{outcome="success"} 1`)
	assert.Contains(t, text, `pathpredict_departure_candidates_total 12`)
	assert.Contains(t, text, `pathpredict_segment_severity_count 2`)
	assert.Contains(t, text, `pathpredict_segment_risk_levels_total{level="moderate"} 1`)
	assert.Contains(t, text, `pathpredict_weather_estimates_total{method="trend"} 1`)
	assert.Contains(t, text, `pathpredict_collaborator_failures_total{collaborator="weather"} 1`)
	assert.Contains(t, text, `pathpredict_forecast_refreshes_total{outcome="success"} 1`)
	assert.Contains(t, text, "go_goroutines")
}

func TestMetrics_Counters(t *testing.T) {
	m := metrics.New()

	m.ObserveScan(nil, 12, time.Second)
	m.ObserveScan(nil, 6, time.Second)

	count, err := testutil.GatherAndCount(m.Registry, "pathpredict_departure_candidates_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.ObservePlan(nil, time.Second)
		m.ObserveScan(nil, 1, time.Second)
		m.ObserveSegment(1, "safe")
		m.ObserveEstimate("nearest")
		m.CollaboratorFailed("routing")
		m.ObserveRefresh(errors.New("x"))
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
