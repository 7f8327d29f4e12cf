// Package planner assembles route risk reports and recommends departure times.
package planner

import (
	"context"
	"time"

	"github.com/pathpredict/pathpredict/internal/routing"
	"github.com/pathpredict/pathpredict/internal/severity"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// RouteService provides routes between two points.
type RouteService interface {
	GetRoute(ctx context.Context, req routing.RouteRequest) (*routing.Route, error)
}

// ForecastService provides hourly forecasts starting at a reference time.
type ForecastService interface {
	GetForecast(ctx context.Context, location geo.Coordinate, reference time.Time) (*weather.Series, error)
}

// PlanRequest asks for the risk of driving a route at a departure time.
type PlanRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	// DepartureTime defaults to now when zero.
	DepartureTime time.Time
}

// DepartureRequest asks for the best departure within a window of hours.
type DepartureRequest struct {
	Origin      geo.Coordinate
	Destination geo.Coordinate
	WindowHours int
	// Now anchors the window; defaults to the current time when zero.
	Now time.Time
	// Progress is called after each candidate is evaluated (optional).
	Progress ProgressFunc
}

// ProgressFunc reports completed candidates out of total.
// Calls are serialized and completed increases by one each call.
type ProgressFunc func(completed, total int)

// ForecastRequest asks for the hourly forecast at a location.
type ForecastRequest struct {
	Location geo.Coordinate
	// Start defaults to now when zero.
	Start time.Time
}

// SegmentRisk pairs a segment with its weather and risk score.
type SegmentRisk struct {
	routing.Segment `yaml:",inline"`
	Weather         weather.Estimate `json:"weather" yaml:"weather"`
	Risk            severity.Score   `json:"risk" yaml:"risk"`
}

// RouteRiskReport is the risk assessment of a route for one departure time.
type RouteRiskReport struct {
	Route         *routing.Route `json:"route" yaml:"route"`
	DepartureTime time.Time      `json:"departure_time" yaml:"departure_time"`
	ArrivalTime   time.Time      `json:"arrival_time" yaml:"arrival_time"`
	Segments      []SegmentRisk  `json:"segments" yaml:"segments"`
	// OverallRisk is the mean segment severity, 0 with no segments.
	OverallRisk  float64        `json:"overall_risk" yaml:"overall_risk"`
	OverallLevel severity.Level `json:"overall_level" yaml:"overall_level"`
	// WorstLevel is the highest risk level of any segment.
	WorstLevel severity.Level `json:"worst_level" yaml:"worst_level"`
}

// DepartureRecommendation is one candidate departure time.
type DepartureRecommendation struct {
	DepartureTime time.Time      `json:"departure_time" yaml:"departure_time"`
	Offset        int            `json:"offset_hours" yaml:"offset_hours"`
	AverageRisk   float64        `json:"average_risk" yaml:"average_risk"`
	Level         severity.Level `json:"risk_level" yaml:"risk_level"`
	// ScoredSegments is the number of segments with forecast data.
	ScoredSegments int `json:"scored_segments" yaml:"scored_segments"`
}

// DepartureSearchResult ranks candidate departures by ascending risk.
type DepartureSearchResult struct {
	Route           *routing.Route            `json:"route" yaml:"route"`
	WindowHours     int                       `json:"window_hours" yaml:"window_hours"`
	Best            DepartureRecommendation   `json:"best" yaml:"best"`
	Recommendations []DepartureRecommendation `json:"recommendations" yaml:"recommendations"`
}

// ForecastSeries is a bounded hourly forecast for one location.
type ForecastSeries struct {
	Location geo.Coordinate     `json:"location" yaml:"location"`
	Timezone string             `json:"timezone" yaml:"timezone"`
	Hours    []weather.Snapshot `json:"hours" yaml:"hours"`
}
