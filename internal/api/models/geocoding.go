package models

// Place is a geocoding result.
type Place struct {
	Name       string  `json:"name"`
	Point      Point   `json:"point"`
	Type       string  `json:"type,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

// PlaceSearchResponse is the response of GET /v1/geocoding/search.
type PlaceSearchResponse struct {
	Results []Place `json:"results"`
}

// ReverseGeocodeResponse is the response of GET /v1/geocoding/reverse.
type ReverseGeocodeResponse struct {
	Location Place `json:"location"`
}
