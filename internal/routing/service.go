package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// Profile is used when a request leaves it empty (default: driving-car).
	Profile Profile

	// CacheTTL is how long a route is served without asking the provider
	// (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize snaps endpoints to cells of this many degrees before
	// keying the cache (default: 0.001, about 110 m).
	CacheGridSize float64

	// StaleIfErrorTTL bounds how old a route may be when it stands in for a
	// failed provider call (default: 15 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often entries past StaleIfErrorTTL are dropped
	// (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service fronts a routing provider with a per-endpoint cache. Concurrent
// requests for the same endpoints share one provider call.
type Service struct {
	provider        Provider
	profile         Profile
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	inflight singleflight.Group

	mu          sync.RWMutex
	cache       map[string]*cachedRoute
	lastCleanup time.Time
}

type cachedRoute struct {
	route     *Route
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		profile:         cfg.Profile,
		logger:          cfg.Logger,
		cacheTTL:        cfg.CacheTTL,
		cacheGridSize:   cfg.CacheGridSize,
		staleIfErrorTTL: cfg.StaleIfErrorTTL,
		cleanupInterval: cfg.CleanupInterval,
		cache:           make(map[string]*cachedRoute),
	}
	if s.profile == "" {
		s.profile = ProfileCar
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 5 * time.Minute
	}
	if s.cacheGridSize <= 0 {
		s.cacheGridSize = 0.001
	}
	if s.staleIfErrorTTL <= 0 {
		s.staleIfErrorTTL = 15 * time.Minute
	}
	if s.cleanupInterval <= 0 {
		s.cleanupInterval = 5 * time.Minute
	}
	return s
}

// GetRoute returns the route between the request endpoints. A fresh cached
// route is returned as is. When the provider fails for any reason other than
// ErrNoRouteFound, a route younger than StaleIfErrorTTL is served instead.
func (s *Service) GetRoute(ctx context.Context, req RouteRequest) (*Route, error) {
	if err := req.Origin.Validate(); err != nil {
		return nil, s.invalid("INVALID_ORIGIN", "invalid origin coordinates")
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, s.invalid("INVALID_DESTINATION", "invalid destination coordinates")
	}
	if req.Profile == "" {
		req.Profile = s.profile
	}

	key := s.cacheKey(req)
	if entry, ok := s.lookup(key); ok && time.Now().Before(entry.expiresAt) {
		s.logger.Debug().Str("cache_key", key).Msg("route cache hit")
		return entry.route, nil
	}

	v, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.fetch(ctx, req, key)
	})
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight route fetch")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Route), nil
}

func (s *Service) invalid(code, message string) error {
	return &Error{
		Provider: s.provider.Name(),
		Code:     code,
		Message:  message,
		Err:      ErrInvalidCoordinates,
	}
}

func (s *Service) lookup(key string) (*cachedRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[key]
	return entry, ok
}

func (s *Service) fetch(ctx context.Context, req RouteRequest, key string) (*Route, error) {
	// A caller that lost the race to an earlier flight finds its result here.
	if entry, ok := s.lookup(key); ok && time.Now().Before(entry.expiresAt) {
		return entry.route, nil
	}

	log := s.logger.With().
		Str("provider", s.provider.Name()).
		Str("profile", string(req.Profile)).
		Str("cache_key", key).
		Logger()

	route, err := s.provider.GetRoute(ctx, req)
	if err == nil && (route == nil || len(route.Coordinates) < 2) {
		err = &Error{
			Provider: s.provider.Name(),
			Code:     "EMPTY_GEOMETRY",
			Message:  "provider returned a route without geometry",
			Err:      ErrNoRouteFound,
		}
	}
	if err != nil {
		if errors.Is(err, ErrNoRouteFound) {
			log.Debug().Err(err).Msg("provider found no route")
			return nil, err
		}
		if entry, ok := s.lookup(key); ok && time.Since(entry.fetchedAt) < s.staleIfErrorTTL {
			log.Warn().Err(err).Time("fetched_at", entry.fetchedAt).Msg("serving stale route after provider error")
			return entry.route, nil
		}
		log.Error().Err(err).Msg("route fetch failed")
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.cache[key] = &cachedRoute{route: route, fetchedAt: now, expiresAt: now.Add(s.cacheTTL)}
	s.cleanupLocked(now)
	s.mu.Unlock()

	log.Debug().
		Int("points", len(route.Coordinates)).
		Float64("distance_m", route.DistanceMeters).
		Msg("cached route")
	return route, nil
}

// cacheKey snaps both endpoints to grid cells:
// {profile}:{originLatCell},{originLonCell}:{destLatCell},{destLonCell}.
func (s *Service) cacheKey(req RouteRequest) string {
	cell := func(deg float64) int64 {
		return int64(math.Floor(deg / s.cacheGridSize))
	}
	return fmt.Sprintf("%s:%d,%d:%d,%d",
		req.Profile,
		cell(req.Origin.Lat), cell(req.Origin.Lon),
		cell(req.Destination.Lat), cell(req.Destination.Lon),
	)
}

// cleanupLocked drops entries too old to serve even as stale data. The
// caller holds s.mu.
func (s *Service) cleanupLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, entry := range s.cache {
		if now.Sub(entry.fetchedAt) >= s.staleIfErrorTTL {
			delete(s.cache, key)
			expired++
		}
	}
	if expired > 0 {
		s.logger.Debug().Int("expired_entries", expired).Msg("pruned route cache")
	}
}

// InvalidateCache clears all cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedRoute)
}

// CacheStats counts cached routes by freshness.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := CacheStats{TotalEntries: len(s.cache), Provider: s.provider.Name()}
	for _, entry := range s.cache {
		switch {
		case now.Before(entry.expiresAt):
			stats.FreshEntries++
		case now.Sub(entry.fetchedAt) < s.staleIfErrorTTL:
			stats.StaleEntries++
		}
	}
	return stats
}

type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	Provider     string
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
