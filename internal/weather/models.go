// Package weather provides hourly forecast series and point-in-time weather estimates.
package weather

import (
	"context"
	"errors"
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Weather errors.
var (
	ErrProviderUnavailable = errors.New("weather provider unavailable")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
	// ErrNoMatchingForecast is returned by Nearest when no entry is at or after the target hour.
	ErrNoMatchingForecast = errors.New("no forecast entry at or after the requested time")
)

// Provider defines the interface for hourly forecast providers.
type Provider interface {
	// GetForecast fetches the hourly forecast for a location, covering several days forward.
	GetForecast(ctx context.Context, location geo.Coordinate) (*Series, error)

	// Name returns the provider name for logging.
	Name() string
}

// Series is an hourly forecast for one location, sorted ascending by time.
type Series struct {
	Location  geo.Coordinate `json:"location" yaml:"location"`
	Timezone  string         `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	Entries   []Hour         `json:"entries" yaml:"entries"`
	FetchedAt time.Time      `json:"fetched_at" yaml:"fetched_at"`
}

// Hour is one forecast entry. Nil fields are missing from the provider data.
type Hour struct {
	Time          time.Time `json:"time"`
	Temperature   *float64  `json:"temperature,omitempty"`   // °C
	Precipitation *float64  `json:"precipitation,omitempty"` // mm
	WindSpeed     *float64  `json:"wind_speed,omitempty"`    // km/h
	Code          *int      `json:"code,omitempty"`          // WMO weather code
}

// Since returns a view of the series starting at the hour containing t.
// A zero t returns the series unchanged.
func (s *Series) Since(t time.Time) *Series {
	if s == nil || t.IsZero() {
		return s
	}

	hour := t.Truncate(time.Hour)
	start := len(s.Entries)
	for i := range s.Entries {
		if !s.Entries[i].Time.Before(hour) {
			start = i
			break
		}
	}

	trimmed := *s
	trimmed.Entries = s.Entries[start:]
	return &trimmed
}

// Limit returns a view of at most n entries.
func (s *Series) Limit(n int) *Series {
	if s == nil || len(s.Entries) <= n {
		return s
	}
	limited := *s
	limited.Entries = s.Entries[:n]
	return &limited
}

// Snapshot is a flattened forecast entry with its condition description.
type Snapshot struct {
	Time          time.Time `json:"time" yaml:"time"`
	Temperature   *float64  `json:"temperature" yaml:"temperature"`
	Precipitation *float64  `json:"precipitation" yaml:"precipitation"`
	WindSpeed     *float64  `json:"wind_speed" yaml:"wind_speed"`
	Code          int       `json:"weather_code" yaml:"weather_code"`
	Description   string    `json:"description" yaml:"description"`
}

// Snapshot converts the entry, defaulting a missing code to 0.
func (h Hour) Snapshot() Snapshot {
	code := 0
	if h.Code != nil {
		code = *h.Code
	}
	return Snapshot{
		Time:          h.Time,
		Temperature:   h.Temperature,
		Precipitation: h.Precipitation,
		WindSpeed:     h.WindSpeed,
		Code:          code,
		Description:   Describe(code),
	}
}

// EstimationMethod records how an Estimate was produced.
type EstimationMethod string

const (
	// MethodNearest takes the forecast entry at or after the target hour.
	MethodNearest EstimationMethod = "nearest"
	// MethodTrend fits a short-horizon linear trend per metric.
	MethodTrend EstimationMethod = "trend"
	// MethodFallback uses raw series values for at least one metric.
	MethodFallback EstimationMethod = "fallback"
	// MethodNone means no forecast data was available.
	MethodNone EstimationMethod = "none"
)

// Confidence values attached to estimates.
const (
	ConfidenceForecast = 1.0
	ConfidenceTrend    = 0.8
	ConfidenceFallback = 0.5
	ConfidenceNone     = 0.0
)

// Estimate is the weather at one location and instant.
type Estimate struct {
	Time          time.Time        `json:"time" yaml:"time"`
	Temperature   *float64         `json:"temperature" yaml:"temperature"`
	Precipitation *float64         `json:"precipitation" yaml:"precipitation"`
	WindSpeed     *float64         `json:"wind_speed" yaml:"wind_speed"`
	Code          int              `json:"weather_code" yaml:"weather_code"`
	Description   string           `json:"description" yaml:"description"`
	Confidence    float64          `json:"confidence" yaml:"confidence"`
	Method        EstimationMethod `json:"method" yaml:"method"`
}

// Empty returns the estimate used when no forecast data is available.
func Empty(t time.Time) Estimate {
	return Estimate{
		Time:        t,
		Description: Describe(0),
		Confidence:  ConfidenceNone,
		Method:      MethodNone,
	}
}

// Error provides detailed error information from the weather provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
