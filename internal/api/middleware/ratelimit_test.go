package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/api/models"
)

func limitedHandler(limit middleware.RateLimit) http.Handler {
	return middleware.RequestID(middleware.RateLimitByIP(limit)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/departures:recommend", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BudgetPerClient(t *testing.T) {
	h := limitedHandler(middleware.RateLimit{Requests: 2, Window: time.Minute})

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:4000").Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.7:4001").Code)
	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.8:4000").Code, "other clients keep their own budget")
}

func TestRateLimitByIP_ProblemResponse(t *testing.T) {
	h := limitedHandler(middleware.RateLimit{Requests: 1, Window: 30 * time.Second})

	require.Equal(t, http.StatusOK, hit(h, "203.0.113.9:5000").Code)
	rec := hit(h, "203.0.113.9:5000")

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retryAfter)
	assert.LessOrEqual(t, retryAfter, 30)

	var problem models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	assert.Equal(t, models.ProblemTypeTooManyRequests, problem.Type)
	assert.Equal(t, "/v1/departures:recommend", problem.Instance)
	assert.Equal(t, rec.Header().Get(middleware.RequestIDHeader), problem.TraceID)
}

func TestPerMinute(t *testing.T) {
	defaults := middleware.DefaultRateLimits()
	assert.Equal(t, 100, defaults.Standard.Requests)
	assert.Equal(t, 30, defaults.Departures.Requests)
	assert.Equal(t, 10, defaults.Admin.Requests)

	limits := middleware.PerMinute(250, 0, -1)
	assert.Equal(t, middleware.RateLimit{Requests: 250, Window: time.Minute}, limits.Standard)
	assert.Equal(t, defaults.Departures, limits.Departures)
	assert.Equal(t, defaults.Admin, limits.Admin)
}
