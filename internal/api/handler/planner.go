package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/api/response"
	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/planner"
)

// Planner is the route risk pipeline served by PlannerHandler.
type Planner interface {
	PlanRoute(ctx context.Context, req planner.PlanRequest) (*planner.RouteRiskReport, error)
	RecommendDeparture(ctx context.Context, req planner.DepartureRequest) (*planner.DepartureSearchResult, error)
	GetForecastSeries(ctx context.Context, req planner.ForecastRequest) (*planner.ForecastSeries, error)
}

// PlannerHandler handles route planning, departure and forecast endpoints.
type PlannerHandler struct {
	planner Planner
	flags   *featureflags.Service
	logger  zerolog.Logger
}

// NewPlannerHandler creates a new PlannerHandler.
func NewPlannerHandler(p Planner, flags *featureflags.Service, logger zerolog.Logger) *PlannerHandler {
	return &PlannerHandler{
		planner: p,
		flags:   flags,
		logger:  logger,
	}
}

// PlanRoute handles POST /v1/routes:plan - risk report for a route and departure time.
// With ?format=geojson the report is returned as a FeatureCollection of segment lines.
func (h *PlannerHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	var input models.PlanRouteRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	fieldErrors = validatePoint("origin", input.Origin, fieldErrors)
	fieldErrors = validatePoint("destination", input.Destination, fieldErrors)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid route request", fieldErrors)
		return
	}

	geoJSON := r.URL.Query().Get("format") == "geojson"
	if geoJSON && !h.flags.IsGeoJSONOutputEnabled(r.Context()) {
		response.BadRequest(w, r, "geojson output is disabled", nil)
		return
	}

	req := planner.PlanRequest{
		Origin:      input.Origin.Coordinate(),
		Destination: input.Destination.Coordinate(),
	}
	if input.DepartureTime != nil {
		req.DepartureTime = *input.DepartureTime
	}

	report, err := h.planner.PlanRoute(r.Context(), req)
	if err != nil {
		writePlannerError(w, r, h.logger, err)
		return
	}

	if geoJSON {
		h.writeGeoJSON(w, r, report)
		return
	}
	response.JSON(w, r, http.StatusOK, report)
}

func (h *PlannerHandler) writeGeoJSON(w http.ResponseWriter, r *http.Request, report *planner.RouteRiskReport) {
	fc := geojson.NewFeatureCollection()
	if bb := report.Route.BoundingBox; bb != nil {
		fc.BoundingBox = []float64{bb.MinLon, bb.MinLat, bb.MaxLon, bb.MaxLat}
	}

	for _, seg := range report.Segments {
		line := make([][]float64, 0, len(seg.Coordinates))
		for _, c := range seg.Coordinates {
			line = append(line, []float64{c.Lon, c.Lat})
		}

		f := geojson.NewLineStringFeature(line)
		f.SetProperty("index", seg.Index)
		f.SetProperty("eta", seg.ETA.UTC().Format(time.RFC3339))
		f.SetProperty("distance_meters", seg.DistanceMeters)
		f.SetProperty("severity_score", seg.Risk.Severity)
		f.SetProperty("risk_level", string(seg.Risk.Level))
		f.SetProperty("weather_code", seg.Weather.Code)
		f.SetProperty("description", seg.Weather.Description)
		f.SetProperty("method", string(seg.Weather.Method))
		fc.AddFeature(f)
	}

	w.Header().Set("X-Overall-Risk", strconv.FormatFloat(report.OverallRisk, 'f', 2, 64))
	w.Header().Set("X-Overall-Risk-Level", string(report.OverallLevel))
	response.GeoJSON(w, r, fc)
}

// RecommendDeparture handles POST /v1/departures:recommend - rank departure
// times within the next window hours by average route risk.
func (h *PlannerHandler) RecommendDeparture(w http.ResponseWriter, r *http.Request) {
	var input models.RecommendDepartureRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	fieldErrors = validatePoint("origin", input.Origin, fieldErrors)
	fieldErrors = validatePoint("destination", input.Destination, fieldErrors)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid departure request", fieldErrors)
		return
	}

	window := planner.DefaultWindowHours
	if input.WindowHours != nil {
		window = *input.WindowHours
	}

	result, err := h.planner.RecommendDeparture(r.Context(), planner.DepartureRequest{
		Origin:      input.Origin.Coordinate(),
		Destination: input.Destination.Coordinate(),
		WindowHours: window,
	})
	if err != nil {
		writePlannerError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

// GetForecast handles POST /v1/weather:forecast - hourly forecast at a location.
func (h *PlannerHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	var input models.ForecastRequest
	if !decodeJSON(w, r, &input) {
		return
	}

	if fieldErrors := validatePoint("location", input.Location, nil); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid forecast request", fieldErrors)
		return
	}

	req := planner.ForecastRequest{Location: input.Location.Coordinate()}
	if input.StartTime != nil {
		req.Start = *input.StartTime
	}

	series, err := h.planner.GetForecastSeries(r.Context(), req)
	if err != nil {
		writePlannerError(w, r, h.logger, err)
		return
	}
	response.JSON(w, r, http.StatusOK, series)
}
