package planner

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Sentinel errors, one per error kind.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInsufficientData    = errors.New("insufficient data")
	ErrNoRoute             = errors.New("no route found")
)

// Kind classifies planner failures.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindInsufficientData    Kind = "insufficient_data"
	KindNoRoute             Kind = "no_route"
	KindUnknown             Kind = "unknown"
)

// Collaborators named in upstream errors.
const (
	CollaboratorRouting   = "routing"
	CollaboratorWeather   = "weather"
	CollaboratorGeocoding = "geocoding"
)

// Error describes a failed planner operation with enough context to explain it.
type Error struct {
	Kind         Kind
	Collaborator string
	Coordinate   *geo.Coordinate
	Time         time.Time
	Message      string
	Err          error
}

// Error returns the detail followed by the cause.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Detail() + ": " + e.Err.Error()
	}
	return e.Detail()
}

// Detail describes the failure without the underlying cause, for display to users.
func (e *Error) Detail() string {
	var b strings.Builder
	switch {
	case e.Message != "":
		b.WriteString(e.Message)
	case e.Collaborator != "":
		b.WriteString(e.Collaborator + " service unavailable")
	default:
		b.WriteString(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Coordinate != nil {
		b.WriteString(" at " + e.Coordinate.String())
	}
	if !e.Time.IsZero() {
		b.WriteString(" for " + e.Time.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidInput:
		return e.Kind == KindInvalidInput
	case ErrUpstreamUnavailable:
		return e.Kind == KindUpstreamUnavailable
	case ErrInsufficientData:
		return e.Kind == KindInsufficientData
	case ErrNoRoute:
		return e.Kind == KindNoRoute
	}
	return false
}

// KindOf returns the kind of a planner error, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func invalidInput(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func upstream(collaborator string, at *geo.Coordinate, t time.Time, err error) *Error {
	return &Error{
		Kind:         KindUpstreamUnavailable,
		Collaborator: collaborator,
		Coordinate:   at,
		Time:         t,
		Err:          err,
	}
}
