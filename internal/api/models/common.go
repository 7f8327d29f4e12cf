// Package models provides request and response models for the PathPredict API.
package models

import (
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Point is a WGS84 position in request and response bodies.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coordinate converts the point into the domain coordinate type.
func (p Point) Coordinate() geo.Coordinate {
	return geo.Coordinate(p)
}

// PointFrom converts a domain coordinate into an API point.
func PointFrom(c geo.Coordinate) Point {
	return Point(c)
}

// HealthStatus is the overall or per-dependency state on the ops endpoints.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "OK"
	HealthStatusDegraded HealthStatus = "DEGRADED"
	HealthStatusFail     HealthStatus = "FAIL"
)

// Timestamp is a time serialized as RFC 3339 in UTC, without fractional seconds.
type Timestamp time.Time

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return time.Time(t).UTC().Truncate(time.Second).MarshalJSON()
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves t unchanged.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var parsed time.Time
	if err := parsed.UnmarshalJSON(data); err != nil {
		return err
	}
	if !parsed.IsZero() {
		*t = Timestamp(parsed)
	}
	return nil
}

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// OptionalTimestamp returns nil for the zero time.
func OptionalTimestamp(t time.Time) *Timestamp {
	if t.IsZero() {
		return nil
	}
	ts := Timestamp(t)
	return &ts
}
