// Package worker provides background forecast refresh jobs for PathPredict.
package worker

import (
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
	"github.com/pathpredict/pathpredict/pkg/polyline"
)

// Corridor is a road corridor whose forecasts are kept warm in the shared cache.
type Corridor struct {
	// Name is the human-readable name of the corridor.
	Name string `json:"name"`

	// Waypoints trace the corridor from one end to the other.
	Waypoints []geo.Coordinate `json:"waypoints"`
}

// RefreshConfig holds configuration for the forecast refresh job.
type RefreshConfig struct {
	// Corridors are the corridors to refresh.
	// If empty, uses DefaultCorridors.
	Corridors []Corridor

	// SampleMeters is the spacing of refreshed points along each corridor.
	// Default: 20 km
	SampleMeters float64

	// Concurrency is the number of concurrent refresh operations.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each point refresh.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Corridors:    DefaultCorridors(),
		SampleMeters: 20000,
		Concurrency:  3,
		Timeout:      30 * time.Second,
	}
}

// DefaultCorridors returns a small set of busy motorway corridors.
func DefaultCorridors() []Corridor {
	return []Corridor{
		{
			Name: "A2 Amsterdam - Utrecht",
			Waypoints: []geo.Coordinate{
				{Lat: 52.3386, Lon: 4.8919},
				{Lat: 52.2210, Lon: 4.9670},
				{Lat: 52.0894, Lon: 5.1102},
			},
		},
		{
			Name: "A4 Amsterdam - Den Haag",
			Waypoints: []geo.Coordinate{
				{Lat: 52.3386, Lon: 4.8919},
				{Lat: 52.1664, Lon: 4.4819},
				{Lat: 52.0705, Lon: 4.3007},
			},
		},
		{
			Name: "A13 Den Haag - Rotterdam",
			Waypoints: []geo.Coordinate{
				{Lat: 52.0705, Lon: 4.3007},
				{Lat: 52.0116, Lon: 4.3571},
				{Lat: 51.9244, Lon: 4.4777},
			},
		},
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	if len(c.Corridors) == 0 {
		c.Corridors = DefaultCorridors()
	}
	if c.SampleMeters <= 0 {
		c.SampleMeters = 20000
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// corridorPoint is one refresh target along a corridor.
type corridorPoint struct {
	corridor string
	point    geo.Coordinate
}

// samplePoints returns the refresh targets along the corridors. Points shared
// by several corridors are refreshed once.
func samplePoints(corridors []Corridor, sampleMeters float64) []corridorPoint {
	seen := make(map[geo.Coordinate]bool)
	var points []corridorPoint
	for _, corridor := range corridors {
		for _, p := range polyline.Sample(corridor.Waypoints, sampleMeters) {
			if seen[p] {
				continue
			}
			seen[p] = true
			points = append(points, corridorPoint{corridor: corridor.Name, point: p})
		}
	}
	return points
}

// TotalPoints returns the number of points the configured corridors sample to.
func (c RefreshConfig) TotalPoints() int {
	c = c.withDefaults()
	return len(samplePoints(c.Corridors, c.SampleMeters))
}
