// Package nominatim provides a client for the OpenStreetMap Nominatim geocoder.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pathpredict/pathpredict/internal/geocoding"
	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "nominatim"

	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 5 * time.Second

	// DefaultUserAgent identifies the application, as the usage policy requires.
	DefaultUserAgent = "PathPredict/1.0"

	// DefaultRequestsPerSecond is the public instance's usage limit.
	DefaultRequestsPerSecond = 1.0
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to the public instance).
	BaseURL string

	// UserAgent is sent with every request (optional).
	UserAgent string

	// RequestsPerSecond bounds outgoing requests (optional, defaults to 1).
	RequestsPerSecond float64

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 5s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Nominatim API client.
type Client struct {
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
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
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Search returns places matching query, ordered by Nominatim relevance.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("addressdetails", "1")

	var results []place
	if err := c.get(ctx, "/search", params, &results); err != nil {
		return nil, err
	}

	places := make([]geocoding.Place, 0, len(results))
	for _, r := range results {
		p, err := toPlace(r)
		if err != nil {
			c.logger.Warn().Err(err).Int64("place_id", r.PlaceID).Msg("skipping malformed search result")
			continue
		}
		places = append(places, p)
	}

	c.logger.Debug().Str("query", query).Int("results", len(places)).Msg("received search results from Nominatim")

	return places, nil
}

// Reverse returns the place at location.
func (c *Client) Reverse(ctx context.Context, location geo.Coordinate) (*geocoding.Place, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(location.Lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(location.Lon, 'f', 6, 64))
	params.Set("format", "json")

	var result place
	if err := c.get(ctx, "/reverse", params, &result); err != nil {
		return nil, err
	}
	if result.Error != "" || result.Lat == "" {
		return nil, &geocoding.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  fmt.Sprintf("no place found at %s", location),
			Err:      geocoding.ErrNotFound,
		}
	}

	p, err := toPlace(result)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// get waits for the rate limiter, performs the request and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      fmt.Errorf("%w: %v", geocoding.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &geocoding.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", resp.StatusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d", resp.StatusCode),
			Err:      geocoding.ErrProviderUnavailable,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toPlace(r place) (geocoding.Place, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return geocoding.Place{}, fmt.Errorf("parsing latitude %q: %w", r.Lat, err)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return geocoding.Place{}, fmt.Errorf("parsing longitude %q: %w", r.Lon, err)
	}

	placeType := r.AddressType
	if placeType == "" {
		placeType = r.Type
	}

	return geocoding.Place{
		Name:       r.DisplayName,
		Coordinate: geo.Coordinate{Lat: lat, Lon: lon},
		Type:       placeType,
		Importance: r.Importance,
	}, nil
}
