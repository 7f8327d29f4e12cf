// Package geocoding resolves place names to coordinates and back.
package geocoding

import (
	"context"
	"errors"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Geocoding errors.
var (
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	ErrNotFound            = errors.New("no place found")
	ErrQueryTooShort       = errors.New("query must be at least 2 characters")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Provider defines the interface for geocoding providers.
type Provider interface {
	// Search returns places matching a free-text query, best match first.
	Search(ctx context.Context, query string, limit int) ([]Place, error)

	// Reverse returns the place at a coordinate, or ErrNotFound.
	Reverse(ctx context.Context, location geo.Coordinate) (*Place, error)

	// Name returns the provider name for logging.
	Name() string
}

// Place is a named location.
type Place struct {
	Name       string         `json:"name" yaml:"name"`
	Coordinate geo.Coordinate `json:"coordinate" yaml:"coordinate"`
	Type       string         `json:"type,omitempty" yaml:"type,omitempty"`
	Importance float64        `json:"importance,omitempty" yaml:"importance,omitempty"`
}

// Error provides detailed error information from the geocoding provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
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
