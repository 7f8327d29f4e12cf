// Package app assembles PathPredict services from configuration. The API
// server, the worker and the CLI share this wiring.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/api/handler"
	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/internal/database"
	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/geocoding"
	"github.com/pathpredict/pathpredict/internal/geocoding/nominatim"
	"github.com/pathpredict/pathpredict/internal/metrics"
	"github.com/pathpredict/pathpredict/internal/planner"
	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/internal/routing"
	"github.com/pathpredict/pathpredict/internal/routing/openrouteservice"
	"github.com/pathpredict/pathpredict/internal/severity"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/internal/weather/openmeteo"
	"github.com/pathpredict/pathpredict/internal/weather/rediscache"
)

// NewLogger returns the process logger. Development environments get the
// console writer; everything else logs JSON to w.
func NewLogger(cfg config.AppConfig, w io.Writer, service, version string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if cfg.IsDevelopment() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Logger()
}

// Components holds the assembled services.
type Components struct {
	Registry  *resilience.Registry
	Flags     *featureflags.Service
	Metrics   *metrics.Metrics
	Policy    severity.Policy
	Routes    *routing.Service
	Forecasts *weather.Service
	Geocoder  *geocoding.Service
	Planner   *planner.Service

	// Redis is nil when no shared cache is configured.
	Redis *redis.Client

	// DB is nil when flags are kept in memory.
	DB *pgxpool.Pool
}

// Build wires every service. Redis and PostgreSQL failures degrade to
// in-process storage instead of failing startup.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	registry := resilience.NewRegistry()
	policy := severity.DefaultPolicy()

	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}
	registry.SetObserver(providerMetrics)

	c := &Components{
		Registry: registry,
		Metrics:  metrics.New(),
		Policy:   policy,
	}

	c.Flags = featureflags.NewService(featureflags.ServiceConfig{
		Repository:   c.flagRepository(ctx, cfg, logger),
		Logger:       logger,
		CacheTTL:     time.Minute,
		DefaultFlags: featureflags.WithOverrides(cfg.Flags),
	})

	format := openrouteservice.GeometryFormat(cfg.Routing.GeometryFormat)
	if format != openrouteservice.GeometryGeoJSON && format != openrouteservice.GeometryPolyline {
		return nil, fmt.Errorf("unsupported routing geometry format %q", cfg.Routing.GeometryFormat)
	}

	c.Routes = routing.NewService(routing.ServiceConfig{
		Provider: openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.Routing.APIKey,
			BaseURL:  cfg.Routing.BaseURL,
			Format:   format,
			Timeout:  cfg.Routing.Timeout,
			Registry: registry,
			Logger:   logger,
		}),
		Logger:   logger,
		Profile:  routing.Profile(cfg.Routing.Profile),
		CacheTTL: cfg.Routing.CacheTTL,
	})

	var shared weather.SharedCache
	if cfg.Redis.URL != "" {
		cache, rdb, err := rediscache.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-process forecast cache only")
		} else {
			shared = cache
			c.Redis = rdb
			logger.Info().Msg("redis forecast cache connected")
		}
	}

	c.Forecasts = weather.NewService(weather.ServiceConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL:      cfg.Weather.BaseURL,
			ForecastDays: cfg.Weather.ForecastDays,
			Timeout:      cfg.Weather.Timeout,
			Registry:     registry,
			Logger:       logger,
		}),
		SharedCache:     shared,
		Observer:        providerMetrics,
		Logger:          logger,
		CacheTTL:        cfg.Weather.CacheTTL,
		StaleIfErrorTTL: cfg.Weather.StaleTTL,
	})

	c.Geocoder = geocoding.NewService(geocoding.ServiceConfig{
		Provider: nominatim.NewClient(nominatim.ClientConfig{
			BaseURL:           cfg.Geocoding.BaseURL,
			UserAgent:         cfg.Geocoding.UserAgent,
			RequestsPerSecond: cfg.Geocoding.RequestsPerSecond,
			Timeout:           cfg.Geocoding.Timeout,
			Registry:          registry,
			Logger:            logger,
		}),
		Logger: logger,
	})

	c.Planner = planner.NewService(planner.ServiceConfig{
		Routes:           c.Routes,
		Forecasts:        c.Forecasts,
		Scorer:           severity.NewScorer(policy),
		Flags:            c.Flags,
		Metrics:          c.Metrics,
		Logger:           logger,
		SegmentDistance:  cfg.Planner.SegmentMeters,
		MaxWindowHours:   cfg.Planner.MaxWindowHours,
		ScanConcurrency:  cfg.Planner.ScanConcurrency,
		MaxForecastHours: cfg.Planner.MaxForecastHours,
		TrendOptions: weather.TrendOptions{
			MinPoints: cfg.Planner.TrendMinPoints,
			Horizon:   cfg.Planner.TrendHorizon,
		},
	})

	return c, nil
}

// flagRepository returns the PostgreSQL store when configured and reachable,
// otherwise an in-memory store seeded with the configured overrides.
func (c *Components) flagRepository(ctx context.Context, cfg *config.Config, logger zerolog.Logger) featureflags.Repository {
	memory := featureflags.NewInMemoryRepositoryWithFlags(featureflags.WithOverrides(cfg.Flags))
	if cfg.Database.URL == "" {
		return memory
	}

	pool, err := database.Connect(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("postgres unavailable, keeping feature flags in memory")
		return memory
	}

	repo := featureflags.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Warn().Err(err).Msg("feature flag schema unavailable, keeping feature flags in memory")
		pool.Close()
		return memory
	}

	c.DB = pool
	logger.Info().Msg("postgres feature flag store connected")
	return repo
}

// ReadinessChecks returns the dependency checks for the readiness probe.
func (c *Components) ReadinessChecks() []handler.ReadinessCheck {
	var checks []handler.ReadinessCheck
	if c.Redis != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return c.Redis.Ping(ctx).Err()
			},
		})
	}
	if c.DB != nil {
		checks = append(checks, handler.ReadinessCheck{
			Name:  "postgres",
			Check: c.DB.Ping,
		})
	}
	return checks
}

// CacheReports exposes the forecast and route caches to the status endpoint.
func (c *Components) CacheReports() []handler.CacheReport {
	return []handler.CacheReport{
		func() models.CacheStatus {
			stats := c.Forecasts.CacheStats()
			return models.CacheStatus{
				Name:    "forecasts",
				Entries: stats.Entries,
				Fresh:   stats.FreshEntries,
				Stale:   stats.StaleEntries,
				Shared:  stats.Shared,
			}
		},
		func() models.CacheStatus {
			stats := c.Routes.CacheStats()
			return models.CacheStatus{
				Name:    "routes",
				Entries: stats.TotalEntries,
				Fresh:   stats.FreshEntries,
				Stale:   stats.StaleEntries,
			}
		},
	}
}

// Close releases connections held by the components.
func (c *Components) Close() error {
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
