package weather

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Nearest returns the forecast entry for the hour containing target. Without
// an exact hour match it takes the first entry at or after target.
func Nearest(series *Series, target time.Time) (Estimate, error) {
	if series == nil || len(series.Entries) == 0 {
		return Estimate{}, ErrNoMatchingForecast
	}

	hour := target.Truncate(time.Hour)
	idx := -1
	for i := range series.Entries {
		if series.Entries[i].Time.Equal(hour) {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range series.Entries {
			if !series.Entries[i].Time.Before(target) {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		return Estimate{}, ErrNoMatchingForecast
	}

	h := series.Entries[idx]
	est := Estimate{
		Time:          target,
		Temperature:   h.Temperature,
		Precipitation: h.Precipitation,
		WindSpeed:     h.WindSpeed,
		Confidence:    ConfidenceForecast,
		Method:        MethodNearest,
	}
	if h.Code != nil {
		est.Code = *h.Code
	}
	est.Description = Describe(est.Code)

	return est, nil
}

// TrendOptions configures Extrapolate.
type TrendOptions struct {
	// MinPoints is the number of usable points a metric needs before a trend
	// is fitted (default: 10).
	MinPoints int

	// Horizon limits fitted points to those within this distance of the
	// target (default: 12 hours).
	Horizon time.Duration
}

// DefaultTrendOptions returns the default trend fitting options.
func DefaultTrendOptions() TrendOptions {
	return TrendOptions{
		MinPoints: 10,
		Horizon:   12 * time.Hour,
	}
}

type metric struct {
	value       func(Hour) *float64
	set         func(*Estimate, float64)
	nonNegative bool
}

var metrics = []metric{
	{
		value: func(h Hour) *float64 { return h.Temperature },
		set:   func(e *Estimate, v float64) { e.Temperature = &v },
	},
	{
		value:       func(h Hour) *float64 { return h.Precipitation },
		set:         func(e *Estimate, v float64) { e.Precipitation = &v },
		nonNegative: true,
	},
	{
		value:       func(h Hour) *float64 { return h.WindSpeed },
		set:         func(e *Estimate, v float64) { e.WindSpeed = &v },
		nonNegative: true,
	},
}

// Extrapolate estimates the weather at target by fitting a least-squares
// linear trend per metric over the series points within the horizon.
// A metric with too few usable points, or whose fit is not finite, falls back
// to its first available value in the series. Precipitation and wind are
// clamped to be non-negative. The condition code is taken from the first
// entry since it is categorical.
//
// Extrapolate never fails: a series with no data yields an estimate with
// zero confidence.
func Extrapolate(series *Series, target time.Time, opts TrendOptions) Estimate {
	if opts.MinPoints <= 0 {
		opts.MinPoints = DefaultTrendOptions().MinPoints
	}
	if opts.Horizon <= 0 {
		opts.Horizon = DefaultTrendOptions().Horizon
	}

	est := Empty(target)
	if series == nil || len(series.Entries) == 0 {
		return est
	}

	if code := series.Entries[0].Code; code != nil {
		est.Code = *code
		est.Description = Describe(est.Code)
	}

	withData := 0
	fellBack := false
	for _, m := range metrics {
		v, fitted, ok := estimateMetric(series.Entries, target, opts, m.value)
		if !ok {
			continue
		}
		withData++
		if !fitted {
			fellBack = true
		}
		if m.nonNegative && v < 0 {
			v = 0
		}
		m.set(&est, v)
	}

	switch {
	case withData == 0:
		// Series carried timestamps only.
	case fellBack:
		est.Confidence = ConfidenceFallback
		est.Method = MethodFallback
	default:
		est.Confidence = ConfidenceTrend
		est.Method = MethodTrend
	}

	return est
}

// estimateMetric returns the trend value at target, whether it came from a
// fit, and whether the metric had any data at all.
func estimateMetric(entries []Hour, target time.Time, opts TrendOptions, value func(Hour) *float64) (float64, bool, bool) {
	horizon := opts.Horizon.Hours()

	xs := make([]float64, 0, len(entries))
	ys := make([]float64, 0, len(entries))
	for _, h := range entries {
		v := value(h)
		if v == nil || !isFinite(*v) {
			continue
		}
		dt := h.Time.Sub(target).Hours()
		if math.Abs(dt) > horizon {
			continue
		}
		xs = append(xs, dt)
		ys = append(ys, *v)
	}

	if len(xs) >= opts.MinPoints {
		// x is relative to target, so the intercept is the value at target.
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		if isFinite(alpha) && isFinite(beta) {
			return alpha, true, true
		}
	}

	for _, h := range entries {
		if v := value(h); v != nil && isFinite(*v) {
			return *v, false, true
		}
	}

	return 0, false, false
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
