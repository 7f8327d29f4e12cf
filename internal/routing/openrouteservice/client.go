// Package openrouteservice provides a client for the OpenRouteService directions API.
package openrouteservice

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/internal/routing"
	"github.com/pathpredict/pathpredict/pkg/geo"
	"github.com/pathpredict/pathpredict/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second
)

// GeometryFormat selects how the route geometry is requested from ORS.
type GeometryFormat string

const (
	// GeometryGeoJSON requests a GeoJSON FeatureCollection with raw [lon, lat] coordinates.
	GeometryGeoJSON GeometryFormat = "geojson"
	// GeometryPolyline requests the JSON response with an encoded polyline.
	GeometryPolyline GeometryFormat = "polyline"
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// Format selects the geometry encoding (optional, defaults to GeoJSON).
	Format GeometryFormat

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 15s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	format     GeometryFormat
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client. Without an HTTPClient it
// builds a resilience client registered under ProviderName.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.Timeout = cmp.Or(cfg.Timeout, DefaultTimeout)
		rc.Registry = cfg.Registry
		rc.Logger = cfg.Logger
		httpClient = resilience.NewClient(rc)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cmp.Or(cfg.BaseURL, DefaultBaseURL),
		format:     cmp.Or(cfg.Format, GeometryGeoJSON),
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetRoute asks ORS for its preferred route between the two points of req.
func (c *Client) GetRoute(ctx context.Context, req routing.RouteRequest) (*routing.Route, error) {
	if req.Origin.Validate() != nil {
		return nil, providerError("INVALID_ORIGIN", "invalid origin coordinates", routing.ErrInvalidCoordinates)
	}
	if req.Destination.Validate() != nil {
		return nil, providerError("INVALID_DESTINATION", "invalid destination coordinates", routing.ErrInvalidCoordinates)
	}
	profile := cmp.Or(req.Profile, routing.ProfileCar)

	httpReq, err := c.newDirectionsRequest(ctx, profile, req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Str("profile", string(profile)).
		Str("format", string(c.format)).
		Stringer("origin", req.Origin).
		Stringer("destination", req.Destination).
		Msg("requesting route")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, providerError("REQUEST_FAILED", "failed to reach routing provider",
			fmt.Errorf("%w: %v", routing.ErrProviderUnavailable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	parse := parseGeoJSON
	if c.format == GeometryPolyline {
		parse = parsePolylineJSON
	}
	route, err := parse(body)
	if err != nil {
		return nil, err
	}
	route.Provider = ProviderName
	route.FetchedAt = time.Now()

	c.logger.Debug().
		Int("points", len(route.Coordinates)).
		Float64("distance_m", route.DistanceMeters).
		Float64("duration_s", route.DurationSeconds).
		Msg("received route")

	return route, nil
}

// newDirectionsRequest builds the POST for profile. ORS takes positions as
// [lon, lat] pairs.
func (c *Client) newDirectionsRequest(ctx context.Context, profile routing.Profile, from, to geo.Coordinate) (*http.Request, error) {
	payload, err := json.Marshal(orsRequest{
		Coordinates: [][]float64{{from.Lon, from.Lat}, {to.Lon, to.Lat}},
		Geometry:    true,
		Units:       "m",
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint, accept := c.baseURL+"/v2/directions/"+string(profile), "application/json"
	if c.format == GeometryGeoJSON {
		endpoint, accept = endpoint+"/geojson", "application/geo+json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", c.apiKey)
	return req, nil
}

// parseGeoJSON converts a GeoJSON directions response into a route.
func parseGeoJSON(body []byte) (*routing.Route, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("decoding geojson response: %w", err)
	}
	if len(fc.Features) == 0 || fc.Features[0].Geometry == nil || !fc.Features[0].Geometry.IsLineString() {
		return nil, noRouteError("response contains no route geometry")
	}

	feature := fc.Features[0]
	coords := make([]geo.Coordinate, 0, len(feature.Geometry.LineString))
	for _, position := range feature.Geometry.LineString {
		if len(position) < 2 {
			continue
		}
		coords = append(coords, geo.Coordinate{Lat: position[1], Lon: position[0]})
	}

	route := &routing.Route{Coordinates: coords}
	if summary, ok := feature.Properties["summary"].(map[string]interface{}); ok {
		route.DistanceMeters, _ = summary["distance"].(float64)
		route.DurationSeconds, _ = summary["duration"].(float64)
	}
	route.BoundingBox = toBoundingBox(feature.BoundingBox)
	if route.BoundingBox == nil {
		route.BoundingBox = toBoundingBox(fc.BoundingBox)
	}

	return route, nil
}

// parsePolylineJSON converts a JSON directions response with an encoded polyline into a route.
func parsePolylineJSON(body []byte) (*routing.Route, error) {
	var orsResp orsResponse
	if err := json.Unmarshal(body, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(orsResp.Routes) == 0 || orsResp.Routes[0].Geometry == "" {
		return nil, noRouteError("response contains no route geometry")
	}

	orsRoute := orsResp.Routes[0]
	coords, err := polyline.Decode(orsRoute.Geometry)
	if err != nil {
		return nil, fmt.Errorf("decoding route geometry: %w", err)
	}
	return &routing.Route{
		Coordinates:     coords,
		DistanceMeters:  orsRoute.Summary.Distance,
		DurationSeconds: orsRoute.Summary.Duration,
		BoundingBox:     toBoundingBox(orsRoute.BBox),
	}, nil
}

func toBoundingBox(bbox []float64) *routing.BoundingBox {
	if len(bbox) < 4 {
		return nil
	}
	return &routing.BoundingBox{
		MinLon: bbox[0],
		MinLat: bbox[1],
		MaxLon: bbox[2],
		MaxLat: bbox[3],
	}
}

func providerError(code, message string, err error) *routing.Error {
	return &routing.Error{Provider: ProviderName, Code: code, Message: message, Err: err}
}

func noRouteError(message string) error {
	return providerError("NO_ROUTE", message, routing.ErrNoRouteFound)
}

// statusError maps a non-200 ORS response to a routing error. Bodies that are
// not ORS error documents still map by status alone.
func statusError(status int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr)
	detail := orsErr.Error.Message

	switch {
	case status == http.StatusTooManyRequests:
		return providerError("RATE_LIMIT", "API rate limit exceeded, please try again later", routing.ErrRateLimitExceeded)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return providerError("FORBIDDEN", "API access denied, check the API key", routing.ErrProviderUnavailable)
	case status == http.StatusNotFound:
		return noRouteError("no route found between the given points")
	case status == http.StatusBadRequest && routeNotFoundCodes[orsErr.Error.Code]:
		return noRouteError(detail)
	case status == http.StatusBadRequest:
		return providerError("BAD_REQUEST", cmp.Or(detail, "routing provider rejected the request"), routing.ErrInvalidCoordinates)
	case status >= http.StatusInternalServerError:
		return providerError(fmt.Sprintf("SERVER_%d", status), "routing provider is temporarily unavailable", routing.ErrProviderUnavailable)
	default:
		return providerError(fmt.Sprintf("HTTP_%d", status),
			cmp.Or(detail, fmt.Sprintf("routing provider returned status %d", status)), routing.ErrProviderUnavailable)
	}
}
