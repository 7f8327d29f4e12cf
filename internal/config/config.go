// Package config loads PathPredict configuration from defaults, an optional
// YAML file, a .env file and PATHPREDICT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/pathpredict/pathpredict/internal/telemetry"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// EnvPrefix is prepended to every environment variable key.
const EnvPrefix = "PATHPREDICT"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Weather   WeatherConfig   `mapstructure:"weather"`
	Geocoding GeocodingConfig `mapstructure:"geocoding"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Flags overrides default feature flag values by key.
	Flags map[string]bool `mapstructure:"flags"`
}

type AppConfig struct {
	Port       int    `mapstructure:"port"`
	Env        string `mapstructure:"env"`
	LogLevel   string `mapstructure:"log_level"`
	RequireTLS bool   `mapstructure:"require_tls"`
}

// IsDevelopment reports whether the console log writer should be used.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "" || a.Env == "development" || a.Env == "local"
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type RoutingConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Profile        string        `mapstructure:"profile"`
	GeometryFormat string        `mapstructure:"geometry_format"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type WeatherConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	StaleTTL     time.Duration `mapstructure:"stale_ttl"`
	ForecastDays int           `mapstructure:"forecast_days"`
}

type GeocodingConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type PlannerConfig struct {
	SegmentMeters    float64       `mapstructure:"segment_meters"`
	MaxWindowHours   int           `mapstructure:"max_window_hours"`
	ScanConcurrency  int           `mapstructure:"scan_concurrency"`
	MaxForecastHours int           `mapstructure:"max_forecast_hours"`
	TrendMinPoints   int           `mapstructure:"trend_min_points"`
	TrendHorizon     time.Duration `mapstructure:"trend_horizon"`
}

type RedisConfig struct {
	// URL enables the shared forecast cache when set.
	URL string `mapstructure:"url"`
}

type DatabaseConfig struct {
	// URL enables the PostgreSQL feature flag store when set.
	URL             string        `mapstructure:"url"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type WorkerConfig struct {
	ProjectID    string        `mapstructure:"project_id"`
	Subscription string        `mapstructure:"subscription"`
	Interval     time.Duration `mapstructure:"interval"`
	Concurrency  int           `mapstructure:"concurrency"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SampleMeters float64       `mapstructure:"sample_meters"`
	Corridors    []Corridor    `mapstructure:"corridors"`
}

// UsesPubSub reports whether jobs arrive through a Pub/Sub subscription.
func (w WorkerConfig) UsesPubSub() bool {
	return w.ProjectID != "" && w.Subscription != ""
}

// Corridor is a named road corridor whose forecasts the worker keeps warm.
// Waypoints are "lat,lon" strings.
type Corridor struct {
	Name      string   `mapstructure:"name"`
	Waypoints []string `mapstructure:"waypoints"`
}

// Coordinates parses the corridor waypoints.
func (c Corridor) Coordinates() ([]geo.Coordinate, error) {
	coords := make([]geo.Coordinate, 0, len(c.Waypoints))
	for _, wp := range c.Waypoints {
		coord, err := geo.Parse(wp)
		if err != nil {
			return nil, fmt.Errorf("corridor %q: %w", c.Name, err)
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

type AdminConfig struct {
	// Token guards the admin endpoints; empty disables them.
	Token string `mapstructure:"token"`
}

// RateLimitConfig sets per-client request budgets per minute for each
// endpoint tier.
type RateLimitConfig struct {
	Standard   int `mapstructure:"standard_per_minute"`
	Departures int `mapstructure:"departures_per_minute"`
	Admin      int `mapstructure:"admin_per_minute"`
}

// Load reads configuration. path may be empty, in which case only defaults,
// .env and the environment are used.
func Load(path string) (*Config, error) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("routing.api_key", EnvPrefix+"_ROUTING_API_KEY", "ORS_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding routing key: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.env", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.require_tls", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("routing.base_url", "https://api.openrouteservice.org")
	v.SetDefault("routing.api_key", "")
	v.SetDefault("routing.profile", "driving-car")
	v.SetDefault("routing.geometry_format", "geojson")
	v.SetDefault("routing.timeout", 15*time.Second)
	v.SetDefault("routing.cache_ttl", time.Hour)

	v.SetDefault("weather.base_url", "https://api.open-meteo.com")
	v.SetDefault("weather.timeout", 10*time.Second)
	v.SetDefault("weather.cache_ttl", 30*time.Minute)
	v.SetDefault("weather.stale_ttl", 3*time.Hour)
	v.SetDefault("weather.forecast_days", 7)

	v.SetDefault("geocoding.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoding.user_agent", "PathPredict/1.0")
	v.SetDefault("geocoding.requests_per_second", 1.0)
	v.SetDefault("geocoding.timeout", 5*time.Second)

	v.SetDefault("planner.segment_meters", 5000.0)
	v.SetDefault("planner.max_window_hours", 168)
	v.SetDefault("planner.scan_concurrency", 4)
	v.SetDefault("planner.max_forecast_hours", 48)
	v.SetDefault("planner.trend_min_points", 10)
	v.SetDefault("planner.trend_horizon", 12*time.Hour)

	v.SetDefault("redis.url", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("worker.project_id", "")
	v.SetDefault("worker.subscription", "")
	v.SetDefault("worker.interval", 30*time.Minute)
	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.timeout", 30*time.Second)
	v.SetDefault("worker.sample_meters", 20000.0)

	v.SetDefault("admin.token", "")

	v.SetDefault("rate_limit.standard_per_minute", 100)
	v.SetDefault("rate_limit.departures_per_minute", 30)
	v.SetDefault("rate_limit.admin_per_minute", 10)
}

// Validate checks value ranges. requireRouting rejects a missing routing API
// key for binaries that plan routes.
func (c *Config) Validate(requireRouting bool) error {
	var problems []string

	if c.App.Port <= 0 || c.App.Port > 65535 {
		problems = append(problems, fmt.Sprintf("app.port %d out of range", c.App.Port))
	}
	if requireRouting && c.Routing.APIKey == "" {
		problems = append(problems, "routing.api_key is required")
	}
	switch c.Routing.GeometryFormat {
	case "geojson", "polyline":
	default:
		problems = append(problems, fmt.Sprintf("routing.geometry_format %q must be geojson or polyline", c.Routing.GeometryFormat))
	}
	if c.Planner.SegmentMeters <= 0 {
		problems = append(problems, "planner.segment_meters must be positive")
	}
	if c.Planner.MaxWindowHours < 1 {
		problems = append(problems, "planner.max_window_hours must be at least 1")
	}
	if c.RateLimit.Standard < 1 || c.RateLimit.Departures < 1 || c.RateLimit.Admin < 1 {
		problems = append(problems, "rate_limit budgets must be at least 1 per minute")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "database.min_conns exceeds database.max_conns")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		problems = append(problems, "telemetry.sample_ratio must be within [0, 1]")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		problems = append(problems, "telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	for _, corridor := range c.Worker.Corridors {
		if len(corridor.Waypoints) == 0 {
			problems = append(problems, fmt.Sprintf("worker corridor %q has no waypoints", corridor.Name))
			continue
		}
		if _, err := corridor.Coordinates(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// TelemetryFor converts the telemetry section for the named service.
func (c *Config) TelemetryFor(serviceName, version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.App.Env,
		OTLPEndpoint:   c.Telemetry.OTLPEndpoint,
		Enabled:        c.Telemetry.Enabled,
		Insecure:       c.Telemetry.Insecure,
		SampleRatio:    c.Telemetry.SampleRatio,
	}
}
