package featureflags

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	// Repository defaults to an in-memory store seeded with DefaultFlags.
	Repository Repository
	Logger     zerolog.Logger

	// CacheTTL bounds how stale a flag read by a pipeline may be (default: 1 minute).
	CacheTTL time.Duration

	// DefaultFlags answer for keys the repository does not hold or cannot
	// be reached for (default: DefaultFlags()).
	DefaultFlags map[string]*Flag
}

// Service evaluates flags for the planner and API. Reads go through a
// per-key cache so a planning request touching every segment does not hit
// the repository more than once per TTL.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	cacheTTL time.Duration
	defaults map[string]*Flag

	mu    sync.RWMutex
	cache map[string]cachedFlag
}

type cachedFlag struct {
	flag      *Flag
	expiresAt time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		cacheTTL: cfg.CacheTTL,
		defaults: cfg.DefaultFlags,
		cache:    make(map[string]cachedFlag),
	}
	if s.repo == nil {
		s.repo = NewInMemoryRepository()
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = time.Minute
	}
	if s.defaults == nil {
		s.defaults = DefaultFlags()
	}
	return s
}

// GetFlag returns the flag for key from the cache, the repository or the
// defaults, in that order. It returns nil for a key nobody knows.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag, ok := s.cached(key, time.Now()); ok {
		return flag
	}

	flag, err := s.repo.GetFlag(ctx, key)
	switch {
	case err == nil:
		s.remember(time.Now(), flag)
		return flag
	case errors.Is(err, ErrFlagNotFound):
	default:
		s.logger.Warn().Err(err).Str("flag", key).Msg("feature flag lookup failed, using default")
	}
	return s.defaults[key]
}

// GetAllFlags returns the defaults overlaid with every stored flag and
// refreshes the cache with the stored ones.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaults))
	for key, flag := range s.defaults {
		result[key] = flag
	}

	stored, err := s.repo.GetAllFlags(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("listing feature flags failed, using defaults")
		return result
	}

	now := time.Now()
	for key, flag := range stored {
		result[key] = flag
		s.remember(now, flag)
	}
	return result
}

// SetFlag stores one flag and makes it visible to this process immediately.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// SetFlags stores flags in one repository call and makes them visible to
// this process immediately. Other replicas see them once their cache expires.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := time.Now()
	for _, flag := range flags {
		flag.UpdatedAt = now
	}

	if err := s.repo.SetFlags(ctx, flags); err != nil {
		return err
	}

	s.remember(now, flags...)
	return nil
}

// InvalidateCache drops every cached flag.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedFlag)
}

// IsEnabled reports whether key is truthy. Unknown keys are disabled and a
// nil service answers from DefaultFlags.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	if s == nil {
		return DefaultFlags()[key].BoolValue(false)
	}
	fallback := s.defaults[key].BoolValue(false)
	return s.GetFlag(ctx, key).BoolValue(fallback)
}

// IsDisabled is the inverse of IsEnabled.
func (s *Service) IsDisabled(ctx context.Context, key string) bool {
	return !s.IsEnabled(ctx, key)
}

func (s *Service) cached(key string, now time.Time) (*Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.cache[key]
	if !ok || now.After(entry.expiresAt) {
		return nil, false
	}
	return entry.flag, true
}

func (s *Service) remember(now time.Time, flags ...*Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, flag := range flags {
		s.cache[flag.Key] = cachedFlag{flag: flag, expiresAt: now.Add(s.cacheTTL)}
	}
}

// IsTrendEstimationEnabled reports whether route weather is extrapolated
// from the forecast trend rather than read from the nearest hour.
func (s *Service) IsTrendEstimationEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagTrendEstimation)
}

// IsConcurrentScanEnabled reports whether departure candidates are scored in parallel.
func (s *Service) IsConcurrentScanEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagConcurrentDepartureScan)
}

// IsGeoJSONOutputEnabled reports whether route plans may be rendered as GeoJSON.
func (s *Service) IsGeoJSONOutputEnabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagGeoJSONOutput)
}
