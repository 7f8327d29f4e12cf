package nominatim

// place is a Nominatim search or reverse result. Coordinates are strings.
type place struct {
	PlaceID     int64   `json:"place_id"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Name        string  `json:"name"`
	Class       string  `json:"class"`
	Type        string  `json:"type"`
	AddressType string  `json:"addresstype"`
	Importance  float64 `json:"importance"`

	// Error is set by /reverse when nothing is found at the location.
	Error string `json:"error"`
}
