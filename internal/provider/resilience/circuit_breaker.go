// Package resilience wraps calls to the routing, weather and geocoding
// collaborators in a circuit breaker with optional backoff retries, and keeps
// a registry of their health for the ops endpoints.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker defaults. A provider that keeps failing is given openTimeout to
// recover before a single probe request is let through.
const (
	defaultCountWindow         = time.Minute
	defaultOpenTimeout         = 30 * time.Second
	tripMinRequests            = 5
	tripFailureRatio           = 0.5
	tripConsecutiveFailures    = 5
	defaultHalfOpenMaxRequests = 1
)

// CircuitBreakerConfig holds configuration for a provider's circuit breaker.
type CircuitBreakerConfig struct {
	// Name is reported in state change logs and the provider registry.
	Name string

	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32

	// Interval is the rolling window after which closed-state counts reset.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// ReadyToTrip decides whether the counts warrant opening the breaker.
	ReadyToTrip func(counts gobreaker.Counts) bool

	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the breaker settings shared by every
// collaborator client.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: defaultHalfOpenMaxRequests,
		Interval:    defaultCountWindow,
		Timeout:     defaultOpenTimeout,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the breaker when half of at least five calls in
// the current window failed, or after five failures in a row.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= tripConsecutiveFailures {
		return true
	}
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRatio
}

// NewCircuitBreaker builds a gobreaker breaker from cfg. T is the result
// type of the protected call, *http.Response for provider clients.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = DefaultReadyToTrip
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.Timeout,
		ReadyToTrip:   readyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
