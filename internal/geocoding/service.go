package geocoding

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Search limits.
const (
	MinQueryLength     = 2
	DefaultSearchLimit = 5
	MaxSearchLimit     = 20
)

// ServiceConfig holds configuration for the geocoding service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger
}

// Service validates geocoding requests before they reach the provider.
type Service struct {
	provider Provider
	logger   zerolog.Logger
}

// NewService creates a new geocoding service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		provider: cfg.Provider,
		logger:   cfg.Logger,
	}
}

// Search returns up to limit places matching query. A limit outside
// [1, MaxSearchLimit] is replaced by DefaultSearchLimit.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = DefaultSearchLimit
	}

	places, err := s.provider.Search(ctx, query, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("place search failed")
		return nil, err
	}

	s.logger.Debug().Str("query", query).Int("results", len(places)).Msg("place search completed")

	if len(places) > limit {
		places = places[:limit]
	}
	return places, nil
}

// Reverse returns the place name at a coordinate.
func (s *Service) Reverse(ctx context.Context, location geo.Coordinate) (*Place, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}

	place, err := s.provider.Reverse(ctx, location)
	if err != nil {
		s.logger.Debug().Err(err).Str("location", location.String()).Msg("reverse geocoding failed")
		return nil, err
	}
	return place, nil
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
