package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/metrics"
	"github.com/pathpredict/pathpredict/internal/routing"
	"github.com/pathpredict/pathpredict/internal/severity"
	"github.com/pathpredict/pathpredict/internal/telemetry"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// Defaults for ServiceConfig.
const (
	DefaultWindowHours      = 12
	DefaultMaxWindowHours   = 168
	DefaultScanConcurrency  = 4
	DefaultMaxForecastHours = 48
)

// ServiceConfig holds configuration for the planner service.
type ServiceConfig struct {
	// Routes resolves origin and destination into a route.
	Routes RouteService

	// Forecasts provides hourly forecasts per segment center.
	Forecasts ForecastService

	// Scorer rates segment weather (default: severity.DefaultPolicy()).
	Scorer *severity.Scorer

	// Flags toggles trend estimation and concurrent scans (optional).
	Flags *featureflags.Service

	// Metrics records domain metrics (optional).
	Metrics *metrics.Metrics

	// Logger for service operations.
	Logger zerolog.Logger

	// SegmentDistance is the target segment length in meters (default: 5000).
	SegmentDistance float64

	// MaxWindowHours bounds the departure window (default: 168).
	MaxWindowHours int

	// ScanConcurrency bounds parallel candidate evaluation (default: 4).
	ScanConcurrency int

	// MaxForecastHours bounds forecast passthrough length (default: 48).
	MaxForecastHours int

	// TrendOptions configures trend extrapolation.
	TrendOptions weather.TrendOptions

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Service runs the route risk pipeline. Segments, estimates and scores are
// rebuilt on every call and never shared between requests.
type Service struct {
	routes           RouteService
	forecasts        ForecastService
	scorer           *severity.Scorer
	flags            *featureflags.Service
	metrics          *metrics.Metrics
	logger           zerolog.Logger
	tracer           trace.Tracer
	segmentDistance  float64
	maxWindowHours   int
	scanConcurrency  int
	maxForecastHours int
	trendOptions     weather.TrendOptions
	now              func() time.Time
}

// NewService creates a new planner service.
func NewService(cfg ServiceConfig) *Service {
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = severity.NewScorer(severity.DefaultPolicy())
	}

	segmentDistance := cfg.SegmentDistance
	if segmentDistance == 0 {
		segmentDistance = routing.DefaultSegmentDistance
	}

	maxWindowHours := cfg.MaxWindowHours
	if maxWindowHours == 0 {
		maxWindowHours = DefaultMaxWindowHours
	}

	scanConcurrency := cfg.ScanConcurrency
	if scanConcurrency <= 0 {
		scanConcurrency = DefaultScanConcurrency
	}

	maxForecastHours := cfg.MaxForecastHours
	if maxForecastHours <= 0 {
		maxForecastHours = DefaultMaxForecastHours
	}

	trendOptions := cfg.TrendOptions
	if trendOptions.MinPoints == 0 && trendOptions.Horizon == 0 {
		trendOptions = weather.DefaultTrendOptions()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		routes:           cfg.Routes,
		forecasts:        cfg.Forecasts,
		scorer:           scorer,
		flags:            cfg.Flags,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		tracer:           telemetry.Tracer("github.com/pathpredict/pathpredict/internal/planner"),
		segmentDistance:  segmentDistance,
		maxWindowHours:   maxWindowHours,
		scanConcurrency:  scanConcurrency,
		maxForecastHours: maxForecastHours,
		trendOptions:     trendOptions,
		now:              now,
	}
}

// PlanRoute fetches the route between two points and assesses its risk for
// the requested departure time.
func (s *Service) PlanRoute(ctx context.Context, req PlanRequest) (report *RouteRiskReport, err error) {
	ctx, span := s.tracer.Start(ctx, "planner.PlanRoute")
	start := time.Now()
	defer func() {
		s.metrics.ObservePlan(err, time.Since(start))
		endSpan(span, err)
	}()

	route, err := s.getRoute(ctx, req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}

	departure := req.DepartureTime
	if departure.IsZero() {
		departure = s.now()
	}

	return s.AssessRoute(ctx, route, departure)
}

// AssessRoute segments an already-fetched route, estimates the weather at
// each segment's ETA and scores it. A segment whose forecast is unavailable
// is scored from an empty estimate; the operation fails only when no segment
// has a forecast.
func (s *Service) AssessRoute(ctx context.Context, route *routing.Route, departure time.Time) (*RouteRiskReport, error) {
	segments, err := routing.SegmentRoute(route, s.segmentDistance, departure)
	if err != nil {
		return nil, invalidInput("%v", err)
	}

	trend := s.flags.IsTrendEstimationEnabled(ctx)

	report := &RouteRiskReport{
		Route:         route,
		DepartureTime: departure,
		ArrivalTime:   departure.Add(route.Duration()),
		Segments:      make([]SegmentRisk, 0, len(segments)),
		WorstLevel:    severity.LevelSafe,
	}

	var firstFailure *Error
	failures := 0
	total := 0.0
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		est, err := s.estimate(ctx, seg, trend)
		if err != nil {
			failures++
			if firstFailure == nil {
				firstFailure = err
			}
			est = weather.Empty(seg.ETA)
		}
		s.metrics.ObserveEstimate(string(est.Method))

		score := s.scorer.Score(est, seg.DistanceMeters)
		s.metrics.ObserveSegment(score.Severity, string(score.Level))

		report.Segments = append(report.Segments, SegmentRisk{Segment: seg, Weather: est, Risk: score})
		report.WorstLevel = severity.Worst(report.WorstLevel, score.Level)
		total += score.Severity
	}

	if len(segments) > 0 && failures == len(segments) {
		return nil, firstFailure
	}
	if failures > 0 {
		s.logger.Warn().
			Int("failed_segments", failures).
			Int("segments", len(segments)).
			Msg("scored segments without forecast data")
	}

	if len(segments) > 0 {
		report.OverallRisk = severity.Round(total / float64(len(segments)))
	}
	report.OverallLevel = s.scorer.Policy().Level(report.OverallRisk)

	s.logger.Debug().
		Int("segments", len(segments)).
		Float64("overall_risk", report.OverallRisk).
		Str("overall_level", string(report.OverallLevel)).
		Bool("trend", trend).
		Msg("route risk assessed")

	return report, nil
}

// estimate fetches the segment's forecast and estimates the weather at its
// ETA. Only a failed fetch is an error; a forecast without a matching entry
// yields an empty estimate.
func (s *Service) estimate(ctx context.Context, seg routing.Segment, trend bool) (weather.Estimate, *Error) {
	series, err := s.forecasts.GetForecast(ctx, seg.Center, seg.ETA)
	if err != nil {
		s.metrics.CollaboratorFailed(CollaboratorWeather)
		s.logger.Warn().Err(err).
			Int("segment", seg.Index).
			Str("center", seg.Center.String()).
			Time("eta", seg.ETA).
			Msg("forecast unavailable for segment")
		center := seg.Center
		return weather.Estimate{}, upstream(CollaboratorWeather, &center, seg.ETA, err)
	}

	if trend {
		return weather.Extrapolate(series, seg.ETA, s.trendOptions), nil
	}

	est, err := weather.Nearest(series, seg.ETA)
	if err != nil {
		return weather.Empty(seg.ETA), nil
	}
	return est, nil
}

// RecommendDeparture fetches the route once and scans the departure window
// for the lowest-risk start time.
func (s *Service) RecommendDeparture(ctx context.Context, req DepartureRequest) (result *DepartureSearchResult, err error) {
	ctx, span := s.tracer.Start(ctx, "planner.RecommendDeparture",
		trace.WithAttributes(attribute.Int("window_hours", req.WindowHours)))
	start := time.Now()
	defer func() {
		candidates := 0
		if result != nil {
			candidates = len(result.Recommendations)
		}
		s.metrics.ObserveScan(err, candidates, time.Since(start))
		endSpan(span, err)
	}()

	if err := s.validateWindow(req.WindowHours); err != nil {
		return nil, err
	}

	route, err := s.getRoute(ctx, req.Origin, req.Destination)
	if err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = s.now()
	}

	return s.Recommend(ctx, route, req.WindowHours, now, req.Progress)
}

// candidate is the outcome of evaluating one departure offset.
type candidate struct {
	rec     DepartureRecommendation
	failure *Error
}

// Recommend evaluates one candidate departure per hour offset in
// [0, windowHours) using nearest-lookup weather, then sorts the candidates by
// ascending average risk. Ties keep chronological order. Segments without
// forecast data are skipped; a candidate with none averages 0.
func (s *Service) Recommend(ctx context.Context, route *routing.Route, windowHours int, now time.Time, progress ProgressFunc) (*DepartureSearchResult, error) {
	if err := s.validateWindow(windowHours); err != nil {
		return nil, err
	}

	results := make([]candidate, windowHours)
	report := progressReporter(progress, windowHours)

	evaluate := func(ctx context.Context, offset int) error {
		c, err := s.evaluateCandidate(ctx, route, now, offset)
		if err != nil {
			return err
		}
		results[offset] = c
		report()
		return nil
	}

	if s.flags.IsConcurrentScanEnabled(ctx) && windowHours > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.scanConcurrency)
		for offset := 0; offset < windowHours; offset++ {
			g.Go(func() error {
				return evaluate(gctx, offset)
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for offset := 0; offset < windowHours; offset++ {
			if err := evaluate(ctx, offset); err != nil {
				return nil, err
			}
		}
	}

	recs := make([]DepartureRecommendation, windowHours)
	scored := 0
	var firstFailure *Error
	for i, c := range results {
		recs[i] = c.rec
		scored += c.rec.ScoredSegments
		if firstFailure == nil && c.failure != nil {
			firstFailure = c.failure
		}
	}
	if scored == 0 && firstFailure != nil {
		return nil, firstFailure
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].AverageRisk < recs[j].AverageRisk
	})

	s.logger.Debug().
		Int("window_hours", windowHours).
		Time("best_departure", recs[0].DepartureTime).
		Float64("best_risk", recs[0].AverageRisk).
		Msg("departure window scanned")

	return &DepartureSearchResult{
		Route:           route,
		WindowHours:     windowHours,
		Best:            recs[0],
		Recommendations: recs,
	}, nil
}

func (s *Service) evaluateCandidate(ctx context.Context, route *routing.Route, now time.Time, offset int) (candidate, error) {
	departure := now.Add(time.Duration(offset) * time.Hour)

	segments, err := routing.SegmentRoute(route, s.segmentDistance, departure)
	if err != nil {
		return candidate{}, invalidInput("%v", err)
	}

	var c candidate
	total := 0.0
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return candidate{}, err
		}

		est, ferr := s.estimate(ctx, seg, false)
		if ferr != nil {
			if c.failure == nil {
				c.failure = ferr
			}
			continue
		}
		if est.Method == weather.MethodNone {
			continue
		}

		score := s.scorer.Score(est, seg.DistanceMeters)
		total += score.Severity
		c.rec.ScoredSegments++
	}

	c.rec.DepartureTime = departure
	c.rec.Offset = offset
	if c.rec.ScoredSegments > 0 {
		c.rec.AverageRisk = severity.Round(total / float64(c.rec.ScoredSegments))
	}
	c.rec.Level = s.scorer.Policy().Level(c.rec.AverageRisk)

	return c, nil
}

// GetForecastSeries returns up to MaxForecastHours hourly snapshots for a
// location starting at the requested time.
func (s *Service) GetForecastSeries(ctx context.Context, req ForecastRequest) (*ForecastSeries, error) {
	if err := req.Location.Validate(); err != nil {
		return nil, invalidInput("location %v", err)
	}

	start := req.Start
	if start.IsZero() {
		start = s.now()
	}

	series, err := s.forecasts.GetForecast(ctx, req.Location, start)
	if err != nil {
		if errors.Is(err, weather.ErrInvalidCoordinates) {
			return nil, invalidInput("location %v", err)
		}
		s.metrics.CollaboratorFailed(CollaboratorWeather)
		loc := req.Location
		return nil, upstream(CollaboratorWeather, &loc, start, err)
	}

	series = series.Limit(s.maxForecastHours)
	out := &ForecastSeries{
		Location: req.Location,
		Timezone: series.Timezone,
		Hours:    make([]weather.Snapshot, 0, len(series.Entries)),
	}
	for _, h := range series.Entries {
		out.Hours = append(out.Hours, h.Snapshot())
	}
	return out, nil
}

// MaxWindowHours returns the largest accepted departure window.
func (s *Service) MaxWindowHours() int {
	return s.maxWindowHours
}

func (s *Service) validateWindow(hours int) error {
	if hours <= 0 || hours > s.maxWindowHours {
		return invalidInput("window hours must be between 1 and %d, got %d", s.maxWindowHours, hours)
	}
	return nil
}

func (s *Service) getRoute(ctx context.Context, origin, destination geo.Coordinate) (*routing.Route, error) {
	if err := origin.Validate(); err != nil {
		return nil, invalidInput("origin %v", err)
	}
	if err := destination.Validate(); err != nil {
		return nil, invalidInput("destination %v", err)
	}

	route, err := s.routes.GetRoute(ctx, routing.RouteRequest{Origin: origin, Destination: destination})
	switch {
	case err == nil:
		return route, nil
	case errors.Is(err, routing.ErrNoRouteFound):
		return nil, &Error{
			Kind:    KindNoRoute,
			Message: fmt.Sprintf("no route found from %s to %s", origin, destination),
			Err:     err,
		}
	case errors.Is(err, routing.ErrInvalidCoordinates):
		return nil, &Error{Kind: KindInvalidInput, Message: "coordinates rejected by routing provider", Err: err}
	default:
		s.metrics.CollaboratorFailed(CollaboratorRouting)
		return nil, upstream(CollaboratorRouting, &origin, time.Time{}, err)
	}
}

// progressReporter serializes progress callbacks from concurrent workers.
func progressReporter(progress ProgressFunc, total int) func() {
	if progress == nil {
		return func() {}
	}
	var mu sync.Mutex
	completed := 0
	return func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		progress(completed, total)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
