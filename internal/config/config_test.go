package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

func clearRoutingKey(t *testing.T) {
	t.Helper()
	t.Setenv("ORS_API_KEY", "")
	t.Setenv("PATHPREDICT_ROUTING_API_KEY", "")
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pathpredict.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearRoutingKey(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "development", cfg.App.Env)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, "driving-car", cfg.Routing.Profile)
	assert.Equal(t, "geojson", cfg.Routing.GeometryFormat)
	assert.Equal(t, 15*time.Second, cfg.Routing.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, 7, cfg.Weather.ForecastDays)
	assert.Equal(t, "PathPredict/1.0", cfg.Geocoding.UserAgent)
	assert.InDelta(t, 1.0, cfg.Geocoding.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 5000.0, cfg.Planner.SegmentMeters, 1e-9)
	assert.Equal(t, 168, cfg.Planner.MaxWindowHours)
	assert.Equal(t, 12*time.Hour, cfg.Planner.TrendHorizon)
	assert.Equal(t, 30*time.Minute, cfg.Worker.Interval)
	assert.False(t, cfg.Worker.UsesPubSub())
	assert.Empty(t, cfg.Routing.APIKey)
	assert.Empty(t, cfg.Admin.Token)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 4, cfg.Database.MaxConns)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, config.RateLimitConfig{Standard: 100, Departures: 30, Admin: 10}, cfg.RateLimit)
}

func TestLoad_File(t *testing.T) {
	clearRoutingKey(t)

	path := writeConfig(t, `
app:
  port: 9000
  env: production
routing:
  api_key: file-key
  geometry_format: polyline
weather:
  cache_ttl: 45m
planner:
  segment_meters: 2500
flags:
  trend_estimation: false
worker:
  project_id: demo
  subscription: forecast-jobs
  corridors:
    - name: a1
      waypoints: ["52.37,4.90", "52.09,5.12"]
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port)
	assert.False(t, cfg.App.IsDevelopment())
	assert.Equal(t, "file-key", cfg.Routing.APIKey)
	assert.Equal(t, "polyline", cfg.Routing.GeometryFormat)
	assert.Equal(t, 45*time.Minute, cfg.Weather.CacheTTL)
	assert.InDelta(t, 2500.0, cfg.Planner.SegmentMeters, 1e-9)
	assert.Equal(t, map[string]bool{"trend_estimation": false}, cfg.Flags)
	assert.True(t, cfg.Worker.UsesPubSub())

	require.Len(t, cfg.Worker.Corridors, 1)
	coords, err := cfg.Worker.Corridors[0].Coordinates()
	require.NoError(t, err)
	assert.Equal(t, []geo.Coordinate{{Lat: 52.37, Lon: 4.90}, {Lat: 52.09, Lon: 5.12}}, coords)

	require.NoError(t, cfg.Validate(true))
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearRoutingKey(t)
	t.Setenv("PATHPREDICT_APP_PORT", "9191")
	t.Setenv("PATHPREDICT_WEATHER_CACHE_TTL", "10m")
	t.Setenv("ORS_API_KEY", "env-key")

	path := writeConfig(t, "app:\n  port: 9000\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.App.Port)
	assert.Equal(t, 10*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, "env-key", cfg.Routing.APIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	clearRoutingKey(t)

	tests := []struct {
		name           string
		mutate         func(*config.Config)
		requireRouting bool
		wantErr        string
	}{
		{
			name:   "defaults without routing",
			mutate: func(*config.Config) {},
		},
		{
			name:           "missing routing key",
			mutate:         func(*config.Config) {},
			requireRouting: true,
			wantErr:        "routing.api_key",
		},
		{
			name:    "bad port",
			mutate:  func(c *config.Config) { c.App.Port = 70000 },
			wantErr: "app.port",
		},
		{
			name:    "unknown geometry format",
			mutate:  func(c *config.Config) { c.Routing.GeometryFormat = "wkt" },
			wantErr: "geometry_format",
		},
		{
			name:    "non-positive segment length",
			mutate:  func(c *config.Config) { c.Planner.SegmentMeters = 0 },
			wantErr: "segment_meters",
		},
		{
			name:    "sample ratio out of range",
			mutate:  func(c *config.Config) { c.Telemetry.SampleRatio = 1.5 },
			wantErr: "sample_ratio",
		},
		{
			name: "database pool bounds",
			mutate: func(c *config.Config) {
				c.Database.MinConns = 8
				c.Database.MaxConns = 2
			},
			wantErr: "min_conns",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *config.Config) { c.RateLimit.Departures = 0 },
			wantErr: "rate_limit",
		},
		{
			name: "bad corridor waypoint",
			mutate: func(c *config.Config) {
				c.Worker.Corridors = []config.Corridor{{Name: "a2", Waypoints: []string{"north,south"}}}
			},
			wantErr: "a2",
		},
		{
			name: "empty corridor",
			mutate: func(c *config.Config) {
				c.Worker.Corridors = []config.Corridor{{Name: "a4"}}
			},
			wantErr: "no waypoints",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate(tt.requireRouting)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalidConfig))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTelemetryFor(t *testing.T) {
	clearRoutingKey(t)
	t.Setenv("PATHPREDICT_TELEMETRY_ENABLED", "true")
	t.Setenv("PATHPREDICT_TELEMETRY_SAMPLE_RATIO", "0.25")

	cfg, err := config.Load("")
	require.NoError(t, err)

	tc := cfg.TelemetryFor("pathpredict-api", "1.2.3")
	assert.Equal(t, "pathpredict-api", tc.ServiceName)
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, "development", tc.Environment)
	assert.True(t, tc.Enabled)
	assert.InDelta(t, 0.25, tc.SampleRatio, 1e-9)
}
