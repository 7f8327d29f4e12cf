package planner_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/metrics"
	"github.com/pathpredict/pathpredict/internal/planner"
	"github.com/pathpredict/pathpredict/internal/routing"
	"github.com/pathpredict/pathpredict/internal/severity"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

var (
	t0          = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	origin      = geo.Coordinate{Lat: 0, Lon: 0}
	destination = geo.Coordinate{Lat: 0, Lon: 0.09}
)

func ptr[T any](v T) *T { return &v }

// fakeRoutes returns a fixed route or error.
type fakeRoutes struct {
	route *routing.Route
	err   error
	calls atomic.Int32
}

func (f *fakeRoutes) GetRoute(_ context.Context, _ routing.RouteRequest) (*routing.Route, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.route, nil
}

// fakeForecasts builds a 72-hour series from t0 with per-hour values and
// trims it to the reference hour like the weather service does.
type fakeForecasts struct {
	precip func(hour int) float64
	fail   func(location geo.Coordinate) bool
	empty  bool

	mu    sync.Mutex
	calls int
}

func (f *fakeForecasts) GetForecast(_ context.Context, location geo.Coordinate, reference time.Time) (*weather.Series, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.fail != nil && f.fail(location) {
		return nil, errors.New("forecast backend timeout")
	}
	series := &weather.Series{Location: location, Timezone: "UTC"}
	if f.empty {
		return series, nil
	}

	for h := 0; h < 72; h++ {
		precip := 0.0
		if f.precip != nil {
			precip = f.precip(h)
		}
		series.Entries = append(series.Entries, weather.Hour{
			Time:          t0.Add(time.Duration(h) * time.Hour),
			Temperature:   ptr(10.0),
			Precipitation: ptr(precip),
			WindSpeed:     ptr(5.0),
			Code:          ptr(0),
		})
	}
	return series.Since(reference), nil
}

func testRoute() *routing.Route {
	return &routing.Route{
		Coordinates:     []geo.Coordinate{origin, destination},
		DistanceMeters:  10007.5,
		DurationSeconds: 600,
		Provider:        "test",
	}
}

func newPlanner(routes planner.RouteService, forecasts planner.ForecastService, flags map[string]bool) *planner.Service {
	return planner.NewService(planner.ServiceConfig{
		Routes:    routes,
		Forecasts: forecasts,
		Flags: featureflags.NewService(featureflags.ServiceConfig{
			Repository: featureflags.NewInMemoryRepositoryWithFlags(featureflags.WithOverrides(flags)),
			Logger:     zerolog.Nop(),
		}),
		Metrics: metrics.New(),
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return t0 },
	})
}

func TestPlanRoute_NearestScenario(t *testing.T) {
	svc := newPlanner(&fakeRoutes{route: testRoute()}, &fakeForecasts{}, map[string]bool{
		featureflags.FlagTrendEstimation: false,
	})

	report, err := svc.PlanRoute(context.Background(), planner.PlanRequest{Origin: origin, Destination: destination})
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	for _, seg := range report.Segments {
		assert.InDelta(t, 5000, seg.DistanceMeters, 50)
		assert.Equal(t, weather.MethodNearest, seg.Weather.Method)
		assert.Equal(t, 0, seg.Weather.Code)
		assert.Equal(t, "Clear sky", seg.Weather.Description)
		assert.Equal(t, 3.6, seg.Risk.Severity)
		assert.Equal(t, severity.LevelSafe, seg.Risk.Level)
	}
	assert.Equal(t, t0.Add(600*time.Second), report.Segments[1].ETA)
	assert.Equal(t, t0, report.DepartureTime)
	assert.Equal(t, t0.Add(10*time.Minute), report.ArrivalTime)
	assert.Equal(t, 3.6, report.OverallRisk)
	assert.Equal(t, severity.LevelSafe, report.OverallLevel)
	assert.Equal(t, severity.LevelSafe, report.WorstLevel)
}

func TestPlanRoute_TrendEstimation(t *testing.T) {
	svc := newPlanner(&fakeRoutes{route: testRoute()}, &fakeForecasts{}, nil)

	report, err := svc.PlanRoute(context.Background(), planner.PlanRequest{
		Origin:        origin,
		Destination:   destination,
		DepartureTime: t0.Add(2 * time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	for _, seg := range report.Segments {
		assert.Equal(t, weather.MethodTrend, seg.Weather.Method)
		assert.Equal(t, weather.ConfidenceTrend, seg.Weather.Confidence)
		assert.InDelta(t, 5.0, *seg.Weather.WindSpeed, 1e-9)
		assert.Equal(t, 3.6, seg.Risk.Severity)
	}
	assert.Equal(t, t0.Add(2*time.Hour), report.DepartureTime)
}

func TestPlanRoute_PartialForecastFailure(t *testing.T) {
	forecasts := &fakeForecasts{fail: func(c geo.Coordinate) bool { return c.Lon == 0 }}
	svc := newPlanner(&fakeRoutes{route: testRoute()}, forecasts, map[string]bool{
		featureflags.FlagTrendEstimation: false,
	})

	report, err := svc.PlanRoute(context.Background(), planner.PlanRequest{Origin: origin, Destination: destination})
	require.NoError(t, err)

	require.Len(t, report.Segments, 2)
	assert.Equal(t, weather.MethodNone, report.Segments[0].Weather.Method)
	assert.Equal(t, 0.0, report.Segments[0].Weather.Confidence)
	assert.Equal(t, 0.0, report.Segments[0].Risk.Severity)
	assert.Equal(t, 3.6, report.Segments[1].Risk.Severity)
	assert.Equal(t, 1.8, report.OverallRisk)
}

func TestPlanRoute_Errors(t *testing.T) {
	t.Run("invalid origin", func(t *testing.T) {
		routes := &fakeRoutes{route: testRoute()}
		svc := newPlanner(routes, &fakeForecasts{}, nil)

		_, err := svc.PlanRoute(context.Background(), planner.PlanRequest{
			Origin:      geo.Coordinate{Lat: 95, Lon: 0},
			Destination: destination,
		})
		assert.ErrorIs(t, err, planner.ErrInvalidInput)
		assert.Equal(t, planner.KindInvalidInput, planner.KindOf(err))
		assert.Zero(t, routes.calls.Load())
	})

	t.Run("no route", func(t *testing.T) {
		routes := &fakeRoutes{err: &routing.Error{Provider: "test", Code: "NO_ROUTE", Message: "no route", Err: routing.ErrNoRouteFound}}
		svc := newPlanner(routes, &fakeForecasts{}, nil)

		_, err := svc.PlanRoute(context.Background(), planner.PlanRequest{Origin: origin, Destination: destination})
		assert.ErrorIs(t, err, planner.ErrNoRoute)
		assert.ErrorIs(t, err, routing.ErrNoRouteFound)
		assert.Equal(t, planner.KindNoRoute, planner.KindOf(err))
	})

	t.Run("routing unavailable", func(t *testing.T) {
		routes := &fakeRoutes{err: routing.ErrProviderUnavailable}
		svc := newPlanner(routes, &fakeForecasts{}, nil)

		_, err := svc.PlanRoute(context.Background(), planner.PlanRequest{Origin: origin, Destination: destination})
		require.ErrorIs(t, err, planner.ErrUpstreamUnavailable)

		var pe *planner.Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, planner.CollaboratorRouting, pe.Collaborator)
		assert.NotContains(t, pe.Detail(), "routing provider unavailable")
	})

	t.Run("weather unavailable everywhere", func(t *testing.T) {
		forecasts := &fakeForecasts{fail: func(geo.Coordinate) bool { return true }}
		svc := newPlanner(&fakeRoutes{route: testRoute()}, forecasts, nil)

		_, err := svc.PlanRoute(context.Background(), planner.PlanRequest{Origin: origin, Destination: destination})
		require.ErrorIs(t, err, planner.ErrUpstreamUnavailable)

		var pe *planner.Error
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, planner.CollaboratorWeather, pe.Collaborator)
		require.NotNil(t, pe.Coordinate)
		assert.Equal(t, origin, *pe.Coordinate)
		assert.Contains(t, pe.Detail(), "weather service unavailable at 0,0")
	})
}

func TestAssessRoute_DegenerateRoute(t *testing.T) {
	forecasts := &fakeForecasts{}
	svc := newPlanner(&fakeRoutes{}, forecasts, nil)

	report, err := svc.AssessRoute(context.Background(), &routing.Route{Coordinates: []geo.Coordinate{origin}}, t0)
	require.NoError(t, err)
	assert.Empty(t, report.Segments)
	assert.Equal(t, 0.0, report.OverallRisk)
	assert.Equal(t, severity.LevelSafe, report.OverallLevel)
	assert.Zero(t, forecasts.calls)
}

// precipValley is driest at hours 5 and 6 and wetter further away.
func precipValley(hour int) float64 {
	return math.Abs(float64(hour)-5.5) - 0.5
}

func TestRecommendDeparture(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		name := "sequential"
		if concurrent {
			name = "concurrent"
		}
		t.Run(name, func(t *testing.T) {
			svc := newPlanner(&fakeRoutes{route: testRoute()}, &fakeForecasts{precip: precipValley}, map[string]bool{
				featureflags.FlagConcurrentDepartureScan: concurrent,
			})

			result, err := svc.RecommendDeparture(context.Background(), planner.DepartureRequest{
				Origin:      origin,
				Destination: destination,
				WindowHours: 12,
			})
			require.NoError(t, err)

			require.Len(t, result.Recommendations, 12)
			assert.Equal(t, 12, result.WindowHours)

			offsets := make([]int, 0, 12)
			for _, rec := range result.Recommendations {
				offsets = append(offsets, rec.Offset)
				assert.Equal(t, t0.Add(time.Duration(rec.Offset)*time.Hour), rec.DepartureTime)
				assert.Equal(t, 2, rec.ScoredSegments)
			}
			// Ties keep chronological order.
			assert.Equal(t, []int{5, 6, 4, 7, 3, 8, 2, 9, 1, 10, 0, 11}, offsets)

			assert.Equal(t, 5, result.Best.Offset)
			assert.Equal(t, 3.6, result.Best.AverageRisk)
			assert.Equal(t, severity.LevelSafe, result.Best.Level)
			for _, rec := range result.Recommendations {
				assert.GreaterOrEqual(t, rec.AverageRisk, result.Best.AverageRisk)
			}

			// 5 mm: (50*0.4 + 10*0.3) * 1.2
			last := result.Recommendations[11]
			assert.Equal(t, 11, last.Offset)
			assert.Equal(t, 27.6, last.AverageRisk)
			assert.Equal(t, severity.LevelModerate, last.Level)
		})
	}
}

func TestRecommendDeparture_Progress(t *testing.T) {
	svc := newPlanner(&fakeRoutes{route: testRoute()}, &fakeForecasts{}, nil)

	var calls []int
	_, err := svc.RecommendDeparture(context.Background(), planner.DepartureRequest{
		Origin:      origin,
		Destination: destination,
		WindowHours: 6,
		Progress: func(completed, total int) {
			assert.Equal(t, 6, total)
			calls = append(calls, completed)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, calls)
}

func TestRecommendDeparture_InvalidWindow(t *testing.T) {
	for _, window := range []int{0, -1, 169} {
		routes := &fakeRoutes{route: testRoute()}
		svc := newPlanner(routes, &fakeForecasts{}, nil)

		_, err := svc.RecommendDeparture(context.Background(), planner.DepartureRequest{
			Origin:      origin,
			Destination: destination,
			WindowHours: window,
		})
		assert.ErrorIs(t, err, planner.ErrInvalidInput, "window %d", window)
		assert.Zero(t, routes.calls.Load())
	}
}

func TestRecommend_NoForecastData(t *testing.T) {
	svc := newPlanner(&fakeRoutes{}, &fakeForecasts{empty: true}, nil)

	result, err := svc.Recommend(context.Background(), testRoute(), 3, t0, nil)
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 3)
	for i, rec := range result.Recommendations {
		assert.Equal(t, i, rec.Offset)
		assert.Equal(t, 0.0, rec.AverageRisk)
		assert.Zero(t, rec.ScoredSegments)
	}
	assert.Equal(t, 0, result.Best.Offset)
}

func TestRecommend_WeatherUnavailable(t *testing.T) {
	forecasts := &fakeForecasts{fail: func(geo.Coordinate) bool { return true }}
	svc := newPlanner(&fakeRoutes{}, forecasts, nil)

	_, err := svc.Recommend(context.Background(), testRoute(), 4, t0, nil)
	assert.ErrorIs(t, err, planner.ErrUpstreamUnavailable)
}

func TestRecommend_SkipsFailedSegments(t *testing.T) {
	forecasts := &fakeForecasts{fail: func(c geo.Coordinate) bool { return c.Lon == 0 }}
	svc := newPlanner(&fakeRoutes{}, forecasts, nil)

	result, err := svc.Recommend(context.Background(), testRoute(), 2, t0, nil)
	require.NoError(t, err)
	for _, rec := range result.Recommendations {
		assert.Equal(t, 1, rec.ScoredSegments)
		assert.Equal(t, 3.6, rec.AverageRisk)
	}
}

func TestGetForecastSeries(t *testing.T) {
	svc := newPlanner(&fakeRoutes{}, &fakeForecasts{}, nil)

	t.Run("bounded to 48 hours from start", func(t *testing.T) {
		series, err := svc.GetForecastSeries(context.Background(), planner.ForecastRequest{
			Location: destination,
			Start:    t0.Add(3*time.Hour + 15*time.Minute),
		})
		require.NoError(t, err)

		require.Len(t, series.Hours, 48)
		assert.Equal(t, t0.Add(3*time.Hour), series.Hours[0].Time)
		assert.Equal(t, "UTC", series.Timezone)
		assert.Equal(t, "Clear sky", series.Hours[0].Description)
		assert.Equal(t, destination, series.Location)
	})

	t.Run("short series", func(t *testing.T) {
		series, err := svc.GetForecastSeries(context.Background(), planner.ForecastRequest{
			Location: destination,
			Start:    t0.Add(60 * time.Hour),
		})
		require.NoError(t, err)
		assert.Len(t, series.Hours, 12)
	})

	t.Run("invalid location", func(t *testing.T) {
		_, err := svc.GetForecastSeries(context.Background(), planner.ForecastRequest{
			Location: geo.Coordinate{Lat: 0, Lon: 200},
		})
		assert.ErrorIs(t, err, planner.ErrInvalidInput)
	})

	t.Run("weather unavailable", func(t *testing.T) {
		failing := newPlanner(&fakeRoutes{}, &fakeForecasts{fail: func(geo.Coordinate) bool { return true }}, nil)
		_, err := failing.GetForecastSeries(context.Background(), planner.ForecastRequest{Location: destination})
		assert.ErrorIs(t, err, planner.ErrUpstreamUnavailable)
	})
}

func TestError(t *testing.T) {
	at := geo.Coordinate{Lat: 51.5, Lon: -0.12}
	err := &planner.Error{
		Kind:         planner.KindUpstreamUnavailable,
		Collaborator: planner.CollaboratorWeather,
		Coordinate:   &at,
		Time:         t0,
		Err:          errors.New("dial tcp: timeout"),
	}

	assert.Equal(t, "weather service unavailable at 51.5,-0.12 for 2026-03-14T08:00:00Z", err.Detail())
	assert.Contains(t, err.Error(), "dial tcp: timeout")
	assert.ErrorIs(t, err, planner.ErrUpstreamUnavailable)
	assert.NotErrorIs(t, err, planner.ErrInvalidInput)

	wrapped := errors.Join(errors.New("outer"), err)
	assert.Equal(t, planner.KindUpstreamUnavailable, planner.KindOf(wrapped))
	assert.Equal(t, planner.KindUnknown, planner.KindOf(errors.New("plain")))

	invalid := &planner.Error{Kind: planner.KindInvalidInput}
	assert.Equal(t, "invalid input", invalid.Detail())
}
