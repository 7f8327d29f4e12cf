package openrouteservice

// orsRequest represents the ORS directions API request body.
type orsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Geometry     bool        `json:"geometry"`
	Units        string      `json:"units"`
}

// orsResponse represents the ORS JSON directions response.
type orsResponse struct {
	Routes []orsRoute `json:"routes"`
	BBox   []float64  `json:"bbox,omitempty"`
}

// orsRoute represents a single route in the ORS JSON response.
// Geometry is an encoded polyline with precision 5.
type orsRoute struct {
	Summary  routeSummary `json:"summary"`
	BBox     []float64    `json:"bbox,omitempty"`
	Geometry string       `json:"geometry"`
}

// routeSummary contains summary information for a route.
type routeSummary struct {
	Distance float64 `json:"distance"` // Distance in meters
	Duration float64 `json:"duration"` // Duration in seconds
}

// orsErrorResponse represents an error response from ORS.
type orsErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// routeNotFoundCodes are the 400 error codes that mean no route exists
// rather than a malformed request.
var routeNotFoundCodes = map[int]bool{
	2004: true, // distance exceeds the server limit
	2009: true, // no route between the points
	2010: true, // point not near a routable road
}
