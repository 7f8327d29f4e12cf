package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/api/response"
	"github.com/pathpredict/pathpredict/internal/geocoding"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Geocoder resolves place names and coordinates.
type Geocoder interface {
	Search(ctx context.Context, query string, limit int) ([]geocoding.Place, error)
	Reverse(ctx context.Context, location geo.Coordinate) (*geocoding.Place, error)
}

// GeocodingHandler handles place search and reverse lookup endpoints.
type GeocodingHandler struct {
	geocoder Geocoder
	logger   zerolog.Logger
}

// NewGeocodingHandler creates a new GeocodingHandler.
func NewGeocodingHandler(g Geocoder, logger zerolog.Logger) *GeocodingHandler {
	return &GeocodingHandler{geocoder: g, logger: logger}
}

// Search handles GET /v1/geocoding/search?q=&limit= - place autocomplete.
func (h *GeocodingHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: "must be an integer", Code: "INVALID"},
			})
			return
		}
		limit = n
	}

	places, err := h.geocoder.Search(r.Context(), query, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results := make([]models.Place, 0, len(places))
	for _, p := range places {
		results = append(results, toPlace(p))
	}
	response.JSON(w, r, http.StatusOK, models.PlaceSearchResponse{Results: results})
}

// Reverse handles GET /v1/geocoding/reverse?lat=&lon= - place name at a coordinate.
func (h *GeocodingHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		var fieldErrors []models.FieldError
		if latErr != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "must be a number", Code: "INVALID"})
		}
		if lonErr != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "must be a number", Code: "INVALID"})
		}
		response.BadRequest(w, r, "lat and lon are required", fieldErrors)
		return
	}

	place, err := h.geocoder.Reverse(r.Context(), geo.Coordinate{Lat: lat, Lon: lon})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.ReverseGeocodeResponse{Location: toPlace(*place)})
}

func (h *GeocodingHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, geocoding.ErrQueryTooShort), errors.Is(err, geocoding.ErrInvalidCoordinates):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, geocoding.ErrNotFound):
		response.NotFound(w, r, "location not found")
	default:
		h.logger.Warn().Err(err).Msg("geocoding provider failed")
		response.ServiceUnavailable(w, r, "geocoding service unavailable")
	}
}

func toPlace(p geocoding.Place) models.Place {
	return models.Place{
		Name:       p.Name,
		Point:      models.PointFrom(p.Coordinate),
		Type:       p.Type,
		Importance: p.Importance,
	}
}
