// Package featureflags provides feature flag management for runtime configuration.
package featureflags

import (
	"strconv"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagTrendEstimation estimates route weather by trend extrapolation
	// instead of nearest forecast lookup.
	FlagTrendEstimation = "trend_estimation"

	// FlagConcurrentDepartureScan evaluates departure candidates in parallel.
	FlagConcurrentDepartureScan = "concurrent_departure_scan"

	// FlagGeoJSONOutput enables the GeoJSON representation of route plans.
	FlagGeoJSONOutput = "geojson_output"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue interprets the flag as a boolean. Numbers are true when
// non-zero and strings are parsed with strconv.ParseBool. A nil flag or any
// other value yields fallback.
func (f *Flag) BoolValue(fallback bool) bool {
	if f == nil {
		return fallback
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func (f *Flag) clone() *Flag {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

// defaults holds the value of every well-known flag on a fresh install.
var defaults = map[string]bool{
	FlagTrendEstimation:         true,
	FlagConcurrentDepartureScan: true,
	FlagGeoJSONOutput:           true,
}

// DefaultFlags returns a fresh copy of the well-known flags at their defaults.
func DefaultFlags() map[string]*Flag {
	return WithOverrides(nil)
}

// WithOverrides returns the default flags with the given boolean values
// applied. Unknown keys are added as new flags.
func WithOverrides(overrides map[string]bool) map[string]*Flag {
	now := time.Now()
	flags := make(map[string]*Flag, len(defaults)+len(overrides))
	for key, value := range defaults {
		flags[key] = &Flag{Key: key, Value: value, UpdatedAt: now}
	}
	for key, value := range overrides {
		flags[key] = &Flag{Key: key, Value: value, UpdatedAt: now}
	}
	return flags
}
