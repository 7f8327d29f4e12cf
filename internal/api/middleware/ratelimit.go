package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/pathpredict/pathpredict/internal/api/models"
)

// RateLimit is a request budget per client IP.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimits holds the budget for each endpoint tier. Departure scans fetch
// a forecast per segment for every candidate hour, so they get the smallest
// public budget.
type RateLimits struct {
	Standard   RateLimit
	Departures RateLimit
	Admin      RateLimit
}

// DefaultRateLimits returns the per-minute budgets used when none are configured.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Standard:   RateLimit{Requests: 100, Window: time.Minute},
		Departures: RateLimit{Requests: 30, Window: time.Minute},
		Admin:      RateLimit{Requests: 10, Window: time.Minute},
	}
}

// PerMinute builds RateLimits from per-minute counts. Non-positive counts
// keep the default for that tier.
func PerMinute(standard, departures, admin int) RateLimits {
	limits := DefaultRateLimits()
	if standard > 0 {
		limits.Standard.Requests = standard
	}
	if departures > 0 {
		limits.Departures.Requests = departures
	}
	if admin > 0 {
		limits.Admin.Requests = admin
	}
	return limits
}

// RateLimitByIP limits requests per client IP. Run chi's RealIP first so
// proxied clients are told apart.
func RateLimitByIP(limit RateLimit) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit.Requests,
		limit.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded(limit.Window)),
	)
}

func limitExceeded(window time.Duration) http.HandlerFunc {
	fallback := strconv.Itoa(int(math.Ceil(window.Seconds())))

	return func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", fallback)
		}

		problem := models.NewTooManyRequests(GetRequestID(r.Context()),
			"request budget for this client is spent, retry after the indicated delay")
		problem.Respond(w, r)
	}
}
