package resilience_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/provider/resilience"
)

func TestClient_SuccessfulRequestIsRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("open-meteo")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health, ok := registry.Health("open-meteo")
	require.True(t, ok)
	assert.False(t, health.LastSuccess.IsZero())
	assert.True(t, health.LastFailure.IsZero())
	assert.Equal(t, resilience.StatusHealthy, health.Status())
}

func TestClient_DefaultDoesNotRetry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("ors")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// The 5xx response is handed back for the caller to map.
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())

	health, ok := registry.Health("ors")
	require.True(t, ok)
	assert.False(t, health.LastFailure.IsZero())
	assert.Equal(t, "server error: 503 Service Unavailable", health.LastError)
}

func TestClient_RetriesRewindBody(t *testing.T) {
	var attempts atomic.Int32
	var lastBody atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		lastBody.Store(string(body))
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cbConfig := resilience.DefaultCircuitBreakerConfig("retry")
	cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.Requests >= 100 }

	client := resilience.NewClient(resilience.ClientConfig{
		Name:            "retry",
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		CircuitBreaker:  &cbConfig,
		Logger:          zerolog.Nop(),
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL, strings.NewReader(`{"coordinates":[[0,0],[1,1]]}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, `{"coordinates":[[0,0],[1,1]]}`, lastBody.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cbConfig := resilience.DefaultCircuitBreakerConfig("trip")
	cbConfig.Timeout = time.Second

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "trip",
		Timeout:        time.Second,
		CircuitBreaker: &cbConfig,
		Registry:       registry,
		Logger:         zerolog.Nop(),
	})

	for i := 0; i < 5; i++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		resp, _ := client.Do(req)
		if resp != nil {
			resp.Body.Close()
		}
	}

	assert.Equal(t, gobreaker.StateOpen, client.State())
	health, ok := registry.Health("trip")
	require.True(t, ok)
	assert.Equal(t, resilience.StatusUnhealthy, health.Status())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := resilience.DefaultClientConfig("timeout")
	cfg.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
}

func TestClient_ClientErrorsPassThrough(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := resilience.NewClient(resilience.ClientConfig{Name: "4xx", MaxRetries: 3})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := resilience.DefaultClientConfig("nominatim")

	assert.Equal(t, "nominatim", cfg.Name)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, uint64(0), cfg.MaxRetries)
	require.NotNil(t, cfg.CircuitBreaker)
	assert.Equal(t, "nominatim", cfg.CircuitBreaker.Name)
	assert.Equal(t, time.Minute, cfg.CircuitBreaker.Interval)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Timeout)
}

func TestDefaultReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		counts   gobreaker.Counts
		expected bool
	}{
		{"too few requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"half failing", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
		{"five of five failing", gobreaker.Counts{Requests: 5, TotalFailures: 5}, true},
		{"failure streak after many successes", gobreaker.Counts{Requests: 100, TotalFailures: 5, ConsecutiveFailures: 5}, true},
		{"short failure streak", gobreaker.Counts{Requests: 100, TotalFailures: 4, ConsecutiveFailures: 4}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resilience.DefaultReadyToTrip(tt.counts))
		})
	}
}

type recordedRequest struct {
	provider  string
	operation string
	failed    bool
}

type fakeObserver struct {
	requests []recordedRequest
}

func (o *fakeObserver) RecordRequest(provider, operation string, duration time.Duration, err error) {
	o.requests = append(o.requests, recordedRequest{provider: provider, operation: operation, failed: err != nil})
}

func TestClient_ReportsToObserver(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	observer := &fakeObserver{}
	registry := resilience.NewRegistry()
	registry.SetObserver(observer)
	cfg := resilience.DefaultClientConfig("nominatim")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	for _, path := range []string{"/search", "/fail"} {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+path, http.NoBody)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, []recordedRequest{
		{provider: "nominatim", operation: "/search"},
		{provider: "nominatim", operation: "/fail", failed: true},
	}, observer.requests)
}
