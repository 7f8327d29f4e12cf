package models

// Enums represents the enum values used by the API.
type Enums struct {
	RiskLevels        []string `json:"risk_levels"`
	EstimationMethods []string `json:"estimation_methods"`
}

// WeatherCode describes a WMO weather code and its condition sub-score.
type WeatherCode struct {
	Code           int     `json:"code"`
	Description    string  `json:"description"`
	ConditionScore float64 `json:"condition_score"`
}

// WeatherCodeList lists the known weather codes.
type WeatherCodeList struct {
	Items []WeatherCode `json:"items"`
}

// RiskThresholds exposes the severity cut-offs between risk levels.
type RiskThresholds struct {
	Moderate  float64 `json:"moderate"`
	Risky     float64 `json:"risky"`
	Dangerous float64 `json:"dangerous"`
}
