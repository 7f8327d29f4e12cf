package weather

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// SharedCache stores forecast series across processes.
// Get returns nil, nil on a miss.
type SharedCache interface {
	Get(ctx context.Context, key string) (*Series, error)
	Set(ctx context.Context, key string, series *Series, ttl time.Duration) error
}

// CacheObserver is told whether each forecast lookup was served from the
// in-process cache.
type CacheObserver interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is the forecast data provider.
	Provider Provider

	// SharedCache is consulted after the in-process cache (optional).
	SharedCache SharedCache

	// Logger for service operations.
	Logger zerolog.Logger

	// CacheTTL is how long to cache forecast series (default: 30 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the size of cache grid cells in degrees (default: 0.1).
	// Points within the same grid cell share cached data.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving stale data on provider errors (default: 3 hours).
	StaleIfErrorTTL time.Duration

	// Observer receives cache hit and miss counts (optional).
	Observer CacheObserver
}

// Service provides hourly forecast series with caching.
type Service struct {
	provider        Provider
	shared          SharedCache
	observer        CacheObserver
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration

	group singleflight.Group

	mu              sync.RWMutex
	cache           map[string]*cachedSeries
	lastCleanup     time.Time
	cleanupInterval time.Duration
}

type cachedSeries struct {
	series    *Series
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.1 // ~11km at equator
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 3 * time.Hour
	}

	return &Service{
		provider:        cfg.Provider,
		shared:          cfg.SharedCache,
		observer:        cfg.Observer,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cache:           make(map[string]*cachedSeries),
		cleanupInterval: 5 * time.Minute,
	}
}

// GetForecast returns the hourly forecast for a location starting at the hour
// containing reference. A zero reference returns the full series.
// Cached series are shared between callers and must not be modified.
func (s *Service) GetForecast(ctx context.Context, location geo.Coordinate, reference time.Time) (*Series, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}

	cacheKey := s.cacheKey(location)

	s.mu.RLock()
	if cached, ok := s.cache[cacheKey]; ok && time.Now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.recordCache(true)
		return cached.series.Since(reference), nil
	}
	s.mu.RUnlock()
	s.recordCache(false)

	series, err := s.load(ctx, location, cacheKey, true)
	if err != nil {
		return nil, err
	}
	return series.Since(reference), nil
}

// Refresh fetches the forecast for a location from the provider, bypassing
// cached data, and stores the result in every cache layer.
func (s *Service) Refresh(ctx context.Context, location geo.Coordinate) (*Series, error) {
	if err := location.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	return s.load(ctx, location, s.cacheKey(location), false)
}

// load coalesces concurrent loads of the same grid cell.
func (s *Service) load(ctx context.Context, location geo.Coordinate, cacheKey string, useShared bool) (*Series, error) {
	v, err, _ := s.group.Do(cacheKey, func() (interface{}, error) {
		if useShared {
			if series := s.fromShared(ctx, cacheKey); series != nil {
				s.store(cacheKey, series)
				return series, nil
			}
		}
		return s.fetch(ctx, location, cacheKey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Series), nil
}

func (s *Service) fromShared(ctx context.Context, cacheKey string) *Series {
	if s.shared == nil {
		return nil
	}

	series, err := s.shared.Get(ctx, cacheKey)
	if err != nil {
		s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("shared forecast cache read failed")
		return nil
	}
	if series != nil {
		s.logger.Debug().Str("cache_key", cacheKey).Msg("shared cache hit for forecast")
	}
	return series
}

// fetch fetches a forecast from the provider and updates the caches.
func (s *Service) fetch(ctx context.Context, location geo.Coordinate, cacheKey string) (*Series, error) {
	s.logger.Debug().
		Float64("lat", location.Lat).
		Float64("lon", location.Lon).
		Str("provider", s.provider.Name()).
		Msg("fetching forecast from provider")

	series, err := s.provider.GetForecast(ctx, location)
	if err != nil {
		s.logger.Error().Err(err).
			Float64("lat", location.Lat).
			Float64("lon", location.Lon).
			Msg("failed to fetch forecast")

		s.mu.RLock()
		cached, ok := s.cache[cacheKey]
		s.mu.RUnlock()
		if ok && time.Now().Before(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Time("fetched_at", cached.fetchedAt).
				Msg("serving stale forecast due to provider error")
			return cached.series, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	s.store(cacheKey, series)

	if s.shared != nil {
		if err := s.shared.Set(ctx, cacheKey, series, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("cache_key", cacheKey).Msg("shared forecast cache write failed")
		}
	}

	return series, nil
}

func (s *Service) recordCache(hit bool) {
	if s.observer == nil {
		return
	}
	if hit {
		s.observer.RecordCacheHit(s.provider.Name(), "forecast")
	} else {
		s.observer.RecordCacheMiss(s.provider.Name(), "forecast")
	}
}

func (s *Service) store(cacheKey string, series *Series) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.cache[cacheKey] = &cachedSeries{
		series:    series,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}
	s.cleanupIfNeeded()
}

// cacheKey generates a cache key based on grid cell.
func (s *Service) cacheKey(location geo.Coordinate) string {
	gridLat := math.Floor(location.Lat/s.cacheGridSize) * s.cacheGridSize
	gridLon := math.Floor(location.Lon/s.cacheGridSize) * s.cacheGridSize
	return fmt.Sprintf("%.2f:%.2f", gridLat, gridLon)
}

// cleanupIfNeeded removes entries past the stale window. Caller holds the write lock.
func (s *Service) cleanupIfNeeded() {
	now := time.Now()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	for key, cached := range s.cache {
		if now.After(cached.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
		}
	}
}

// InvalidateCache clears all in-process cached data.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedSeries)
}

// CacheStats counts in-process entries. Stale entries are past their TTL
// but may still answer while the provider is down.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	stats := CacheStats{Entries: len(s.cache), Shared: s.shared != nil}
	for _, c := range s.cache {
		switch {
		case now.Before(c.expiresAt):
			stats.FreshEntries++
		case now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)):
			stats.StaleEntries++
		}
	}
	return stats
}

type CacheStats struct {
	Entries      int
	FreshEntries int
	StaleEntries int
	// Shared reports whether a Redis cache backs this process.
	Shared bool
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}
