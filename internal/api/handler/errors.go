package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/api/response"
	"github.com/pathpredict/pathpredict/internal/planner"
)

// maxBodyBytes bounds request bodies accepted by the JSON endpoints.
const maxBodyBytes = 1 << 20

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return false
	}
	return true
}

// writePlannerError maps planner error kinds onto problem responses.
// Unknown failures are logged and reported without internal detail.
func writePlannerError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	detail := err.Error()
	var perr *planner.Error
	if errors.As(err, &perr) {
		detail = perr.Detail()
	}

	switch planner.KindOf(err) {
	case planner.KindInvalidInput:
		response.BadRequest(w, r, detail, nil)
	case planner.KindNoRoute:
		response.NoRoute(w, r, detail)
	case planner.KindUpstreamUnavailable:
		logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("upstream collaborator unavailable")
		response.ServiceUnavailable(w, r, detail)
	case planner.KindInsufficientData:
		response.Unprocessable(w, r, detail)
	default:
		logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

// validatePoint appends field errors for a missing or out-of-range point.
func validatePoint(field string, p *models.Point, errs []models.FieldError) []models.FieldError {
	if p == nil {
		return append(errs, models.FieldError{Field: field, Message: "required", Code: "REQUIRED"})
	}
	if err := p.Coordinate().Validate(); err != nil {
		return append(errs, models.FieldError{Field: field, Message: err.Error(), Code: "OUT_OF_RANGE"})
	}
	return errs
}
