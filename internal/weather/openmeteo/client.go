// Package openmeteo provides a client for the Open-Meteo hourly forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	// DefaultBaseURL is the Open-Meteo API base URL.
	DefaultBaseURL = "https://api.open-meteo.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultForecastDays is the number of days requested.
	DefaultForecastDays = 7

	hourlyVariables = "temperature_2m,precipitation,wind_speed_10m,weather_code"
	timeLayout      = "2006-01-02T15:04"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public API).
	BaseURL string

	// ForecastDays is how many days ahead to request (optional, defaults to 7).
	ForecastDays int

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an Open-Meteo API client. The public API needs no key.
type Client struct {
	baseURL      string
	forecastDays int
	httpClient   HTTPDoer
	logger       zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	forecastDays := cfg.ForecastDays
	if forecastDays <= 0 {
		forecastDays = DefaultForecastDays
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		baseURL:      baseURL,
		forecastDays: forecastDays,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetForecast fetches the hourly forecast for a location. Times are requested
// and returned in UTC.
func (c *Client) GetForecast(ctx context.Context, location geo.Coordinate) (*weather.Series, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(location.Lat, 'f', 6, 64))
	query.Set("longitude", strconv.FormatFloat(location.Lon, 'f', 6, 64))
	query.Set("hourly", hourlyVariables)
	query.Set("timezone", "UTC")
	query.Set("wind_speed_unit", "kmh")
	query.Set("forecast_days", strconv.Itoa(c.forecastDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Float64("lat", location.Lat).
		Float64("lon", location.Lon).
		Msg("requesting forecast from Open-Meteo")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &weather.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach weather provider",
			Err:      fmt.Errorf("%w: %v", weather.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var omResp forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&omResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	series, err := toSeries(&omResp)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("hours", len(series.Entries)).
		Msg("received forecast from Open-Meteo")

	return series, nil
}

// handleErrorResponse maps Open-Meteo error responses to domain errors.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var omErr errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&omErr)

	reason := omErr.Reason
	if reason == "" {
		reason = fmt.Sprintf("weather provider returned status %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusBadRequest {
		return &weather.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  reason,
			Err:      weather.ErrInvalidCoordinates,
		}
	}

	return &weather.Error{
		Provider: ProviderName,
		Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
		Message:  reason,
		Err:      weather.ErrProviderUnavailable,
	}
}

// toSeries converts the parallel hourly arrays into forecast entries.
// Arrays shorter than the time axis leave the missing values nil.
func toSeries(resp *forecastResponse) (*weather.Series, error) {
	hourly := resp.Hourly
	entries := make([]weather.Hour, 0, len(hourly.Time))

	for i, ts := range hourly.Time {
		t, err := time.ParseInLocation(timeLayout, ts, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parsing forecast time %q: %w", ts, err)
		}

		h := weather.Hour{Time: t}
		if i < len(hourly.Temperature) {
			h.Temperature = hourly.Temperature[i]
		}
		if i < len(hourly.Precipitation) {
			h.Precipitation = hourly.Precipitation[i]
		}
		if i < len(hourly.WindSpeed) {
			h.WindSpeed = hourly.WindSpeed[i]
		}
		if i < len(hourly.WeatherCode) && hourly.WeatherCode[i] != nil {
			code := int(*hourly.WeatherCode[i])
			h.Code = &code
		}
		entries = append(entries, h)
	}

	return &weather.Series{
		Location:  geo.Coordinate{Lat: resp.Latitude, Lon: resp.Longitude},
		Timezone:  resp.Timezone,
		Entries:   entries,
		FetchedAt: time.Now(),
	}, nil
}
