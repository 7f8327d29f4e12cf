// Package response writes API success bodies and problem documents with the
// request ID attached.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/api/models"
)

// JSON encodes data with status. A nil data writes headers only.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	write(w, r, "application/json", status, data)
}

// GeoJSON encodes a FeatureCollection or Feature as application/geo+json.
func GeoJSON(w http.ResponseWriter, r *http.Request, data any) {
	write(w, r, "application/geo+json", http.StatusOK, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	write(w, r, "", http.StatusNoContent, nil)
}

func write(w http.ResponseWriter, r *http.Request, contentType string, status int, data any) {
	h := w.Header()
	if id := middleware.GetRequestID(r.Context()); id != "" {
		h.Set(middleware.RequestIDHeader, id)
	}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Problem writes p with the request path as its instance.
func Problem(w http.ResponseWriter, r *http.Request, p *models.Problem) {
	p.Respond(w, r)
}

func traceID(r *http.Request) string {
	return middleware.GetRequestID(r.Context())
}

// BadRequest answers 400 with optional per-field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errs []models.FieldError) {
	Problem(w, r, models.NewBadRequest(traceID(r), detail, errs))
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewNotFound(traceID(r), detail))
}

// NoRoute answers 404 for endpoints the router cannot connect.
func NoRoute(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewNoRoute(traceID(r), detail))
}

// Unprocessable answers 422 when no segment could be scored.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewUnprocessable(traceID(r), detail))
}

func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewInternalError(traceID(r), detail))
}

// ServiceUnavailable answers 503 naming the collaborator that failed.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.NewServiceUnavailable(traceID(r), detail))
}
