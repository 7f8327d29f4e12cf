package openmeteo

// forecastResponse is the Open-Meteo /v1/forecast response.
type forecastResponse struct {
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timezone  string      `json:"timezone"`
	Hourly    hourlyBlock `json:"hourly"`
}

// hourlyBlock holds parallel arrays indexed by Time. Values may be null.
type hourlyBlock struct {
	Time          []string   `json:"time"`
	Temperature   []*float64 `json:"temperature_2m"`
	Precipitation []*float64 `json:"precipitation"`
	WindSpeed     []*float64 `json:"wind_speed_10m"`
	// Codes are integral but decoded as numbers to tolerate "3.0".
	WeatherCode []*float64 `json:"weather_code"`
}

// errorResponse is returned with HTTP 400 for invalid parameters.
type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}
