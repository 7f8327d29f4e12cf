// Package routing provides road routes and splits them into fixed-distance segments.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrInvalidSegmentDistance indicates a non-positive target segment distance.
	ErrInvalidSegmentDistance = errors.New("segment distance must be positive")
)

// Provider defines the interface for routing providers.
type Provider interface {
	// GetRoute retrieves the preferred route between two points.
	GetRoute(ctx context.Context, req RouteRequest) (*Route, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// Profile represents a routing profile (vehicle type).
type Profile string

const (
	// ProfileCar is the default road profile.
	ProfileCar Profile = "driving-car"
	// ProfileHGV routes heavy goods vehicles.
	ProfileHGV Profile = "driving-hgv"
)

// RouteRequest is the request for computing a route.
type RouteRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	Profile     Profile
}

// Route is an ordered road geometry with its total distance and duration.
// Routes are treated as immutable once returned by a provider.
type Route struct {
	Coordinates     []geo.Coordinate `json:"coordinates" yaml:"coordinates"`
	DistanceMeters  float64          `json:"distance_meters" yaml:"distance_meters"`
	DurationSeconds float64          `json:"duration_seconds" yaml:"duration_seconds"`
	BoundingBox     *BoundingBox     `json:"bbox,omitempty" yaml:"bbox,omitempty"`
	Provider        string           `json:"provider" yaml:"provider"`
	FetchedAt       time.Time        `json:"fetched_at" yaml:"fetched_at"`
}

// Duration returns the total travel time of the route.
func (r *Route) Duration() time.Duration {
	return time.Duration(r.DurationSeconds * float64(time.Second))
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
}

// Error provides detailed error information from the routing provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request could succeed later.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
