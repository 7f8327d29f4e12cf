package handler

import (
	"net/http"
	"sort"

	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/api/response"
	"github.com/pathpredict/pathpredict/internal/severity"
	"github.com/pathpredict/pathpredict/internal/weather"
)

// MetadataHandler handles metadata endpoints.
type MetadataHandler struct {
	policy severity.Policy
}

// NewMetadataHandler creates a new MetadataHandler describing the given scoring policy.
func NewMetadataHandler(policy severity.Policy) *MetadataHandler {
	return &MetadataHandler{policy: policy}
}

// GetEnums handles GET /v1/metadata/enums - get enum values used by the API.
func (h *MetadataHandler) GetEnums(w http.ResponseWriter, r *http.Request) {
	enums := models.Enums{
		RiskLevels: []string{
			string(severity.LevelSafe),
			string(severity.LevelModerate),
			string(severity.LevelRisky),
			string(severity.LevelDangerous),
		},
		EstimationMethods: []string{
			string(weather.MethodNearest),
			string(weather.MethodTrend),
			string(weather.MethodFallback),
			string(weather.MethodNone),
		},
	}
	response.JSON(w, r, http.StatusOK, enums)
}

// ListWeatherCodes handles GET /v1/metadata/weather-codes - WMO codes with
// their descriptions and condition sub-scores.
func (h *MetadataHandler) ListWeatherCodes(w http.ResponseWriter, r *http.Request) {
	codes := make([]int, 0, len(h.policy.Conditions))
	for code := range h.policy.Conditions {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	list := models.WeatherCodeList{Items: make([]models.WeatherCode, 0, len(codes))}
	for _, code := range codes {
		list.Items = append(list.Items, models.WeatherCode{
			Code:           code,
			Description:    weather.Describe(code),
			ConditionScore: h.policy.Conditions[code],
		})
	}
	response.JSON(w, r, http.StatusOK, list)
}

// GetRiskThresholds handles GET /v1/metadata/risk-thresholds.
func (h *MetadataHandler) GetRiskThresholds(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.RiskThresholds{
		Moderate:  h.policy.ModerateAt,
		Risky:     h.policy.RiskyAt,
		Dangerous: h.policy.DangerousAt,
	})
}
