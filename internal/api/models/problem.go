package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error document, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the request ID so a failed plan can be found in the logs.
	TraceID string `json:"traceId"`

	// Errors lists per-field validation failures for 400 responses.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError reports one invalid request field, such as "origin" or "window_hours".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.pathpredict.dev/problems/"

// Problem type URIs.
const (
	ProblemTypeValidation       = problemBase + "validation-error"
	ProblemTypeUnauthorized     = problemBase + "unauthorized"
	ProblemTypeForbidden        = problemBase + "forbidden"
	ProblemTypeNotFound         = problemBase + "not-found"
	ProblemTypeNoRoute          = problemBase + "no-route"
	ProblemTypeTooManyRequests  = problemBase + "too-many-requests"
	ProblemTypeUnsupportedMedia = problemBase + "unsupported-media-type"
	ProblemTypeTLSRequired      = problemBase + "tls-required"
	ProblemTypeInsufficientData = problemBase + "insufficient-data"
	ProblemTypeInternal         = problemBase + "internal-error"
	ProblemTypeUnavailable      = problemBase + "service-unavailable"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:       {"Validation error", http.StatusBadRequest},
	ProblemTypeUnauthorized:     {"Unauthorized", http.StatusUnauthorized},
	ProblemTypeForbidden:        {"Forbidden", http.StatusForbidden},
	ProblemTypeTLSRequired:      {"TLS required", http.StatusForbidden},
	ProblemTypeNotFound:         {"Not found", http.StatusNotFound},
	ProblemTypeNoRoute:          {"No route found", http.StatusNotFound},
	ProblemTypeUnsupportedMedia: {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeInsufficientData: {"Insufficient data", http.StatusUnprocessableEntity},
	ProblemTypeTooManyRequests:  {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeInternal:         {"Internal server error", http.StatusInternalServerError},
	ProblemTypeUnavailable:      {"Service unavailable", http.StatusServiceUnavailable},
}

// NewProblem builds a problem with an explicit title and status.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

func newKnown(problemType, traceID, detail string) *Problem {
	kind, ok := problemKinds[problemType]
	if !ok {
		kind = problemKinds[ProblemTypeInternal]
	}
	p := NewProblem(problemType, kind.title, kind.status, traceID)
	p.Detail = detail
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Respond records the request path as the problem instance and writes it.
func (p *Problem) Respond(w http.ResponseWriter, r *http.Request) {
	p.Instance = r.URL.Path
	p.Write(w)
}

func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newKnown(ProblemTypeValidation, traceID, detail)
	p.Errors = errors
	return p
}

func NewUnauthorized(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnauthorized, traceID, detail)
}

func NewForbidden(traceID, detail string) *Problem {
	return newKnown(ProblemTypeForbidden, traceID, detail)
}

// NewTLSRequired rejects a request forwarded over plain HTTP.
func NewTLSRequired(traceID string) *Problem {
	return newKnown(ProblemTypeTLSRequired, traceID, "requests must be made over HTTPS")
}

func NewNotFound(traceID, detail string) *Problem {
	return newKnown(ProblemTypeNotFound, traceID, detail)
}

// NewNoRoute reports an origin and destination with no drivable route between them.
func NewNoRoute(traceID, detail string) *Problem {
	return newKnown(ProblemTypeNoRoute, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnsupportedMedia, traceID, detail)
}

// NewUnprocessable reports a valid request for which no segment could be scored.
func NewUnprocessable(traceID, detail string) *Problem {
	return newKnown(ProblemTypeInsufficientData, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return newKnown(ProblemTypeTooManyRequests, traceID, detail)
}

func NewInternalError(traceID, detail string) *Problem {
	return newKnown(ProblemTypeInternal, traceID, detail)
}

// NewServiceUnavailable reports a routing, weather or geocoding outage.
// detail names the collaborator.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnavailable, traceID, detail)
}
