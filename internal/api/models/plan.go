package models

import "time"

// PlanRouteRequest is the body of POST /v1/routes:plan.
type PlanRouteRequest struct {
	Origin      *Point `json:"origin"`
	Destination *Point `json:"destination"`
	// DepartureTime defaults to now when omitted.
	DepartureTime *time.Time `json:"departure_time,omitempty"`
}

// RecommendDepartureRequest is the body of POST /v1/departures:recommend.
type RecommendDepartureRequest struct {
	Origin      *Point `json:"origin"`
	Destination *Point `json:"destination"`
	// WindowHours defaults to 12 when omitted.
	WindowHours *int `json:"window_hours,omitempty"`
}

// ForecastRequest is the body of POST /v1/weather:forecast.
type ForecastRequest struct {
	Location *Point `json:"location"`
	// StartTime defaults to now when omitted.
	StartTime *time.Time `json:"start_time,omitempty"`
}
