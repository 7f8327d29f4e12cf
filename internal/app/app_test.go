package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/app"
	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/internal/featureflags"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("ORS_API_KEY", "")
	t.Setenv("PATHPREDICT_ROUTING_API_KEY", "")

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Routing.APIKey = "test-key"
	return cfg
}

func TestNewLogger(t *testing.T) {
	t.Run("production logs JSON with service fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := app.NewLogger(config.AppConfig{Env: "production", LogLevel: "info"}, &buf, "pathpredict-api", "1.0.0")

		logger.Info().Msg("hello")
		logger.Debug().Msg("hidden")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "pathpredict-api", entry["service"])
		assert.Equal(t, "1.0.0", entry["version"])
		assert.Equal(t, "hello", entry["message"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger := app.NewLogger(config.AppConfig{Env: "production", LogLevel: "loud"}, &bytes.Buffer{}, "svc", "v")
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})

	t.Run("debug level", func(t *testing.T) {
		logger := app.NewLogger(config.AppConfig{Env: "production", LogLevel: "debug"}, &bytes.Buffer{}, "svc", "v")
		assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
	})
}

func TestBuild(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Flags = map[string]bool{featureflags.FlagTrendEstimation: false}

	c, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.NotNil(t, c.Planner)
	assert.NotNil(t, c.Routes)
	assert.NotNil(t, c.Forecasts)
	assert.NotNil(t, c.Geocoder)
	assert.NotNil(t, c.Metrics)
	assert.Nil(t, c.Redis)
	assert.Empty(t, c.ReadinessChecks())

	// Every provider client registers with the registry.
	assert.Equal(t, 3, c.Registry.Len())

	var caches []string
	for _, report := range c.CacheReports() {
		status := report()
		caches = append(caches, status.Name)
		assert.Zero(t, status.Entries)
		assert.False(t, status.Shared)
	}
	assert.Equal(t, []string{"forecasts", "routes"}, caches)

	ctx := context.Background()
	assert.False(t, c.Flags.IsTrendEstimationEnabled(ctx))
	assert.True(t, c.Flags.IsConcurrentScanEnabled(ctx))
}

func TestBuild_UnsupportedGeometryFormat(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Routing.GeometryFormat = "wkt"

	_, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wkt")
}

func TestBuild_UnreachableRedisDegrades(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	c, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, c.Redis)
	assert.NoError(t, c.Close())
}

func TestBuild_UnreachablePostgresKeepsFlagsInMemory(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Database.URL = "postgres://pathpredict@127.0.0.1:1/pathpredict?connect_timeout=1"
	cfg.Flags = map[string]bool{featureflags.FlagConcurrentDepartureScan: false}

	c, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.Nil(t, c.DB)
	assert.Empty(t, c.ReadinessChecks())
	assert.False(t, c.Flags.IsConcurrentScanEnabled(context.Background()))
}
