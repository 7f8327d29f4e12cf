package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pathpredict/pathpredict/internal/metrics"
	"github.com/pathpredict/pathpredict/internal/weather"
	"github.com/pathpredict/pathpredict/pkg/geo"
)

// ForecastRefresher fetches a fresh forecast and stores it in every cache layer.
type ForecastRefresher interface {
	Refresh(ctx context.Context, location geo.Coordinate) (*weather.Series, error)
}

// RefreshJob keeps corridor forecasts warm.
type RefreshJob struct {
	config    RefreshConfig
	logger    zerolog.Logger
	forecasts ForecastRefresher
	metrics   *metrics.Metrics

	statsMu sync.RWMutex
	stats   RefreshStats
}

// RefreshStats tracks refresh job statistics.
type RefreshStats struct {
	TotalRuns           int64
	SuccessfulRefreshes int64
	FailedRefreshes     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RefreshJobConfig holds configuration for creating a RefreshJob.
type RefreshJobConfig struct {
	Config    RefreshConfig
	Logger    zerolog.Logger
	Forecasts ForecastRefresher

	// Metrics records refresh outcomes (optional).
	Metrics *metrics.Metrics
}

// NewRefreshJob creates a new refresh job processor.
func NewRefreshJob(cfg RefreshJobConfig) *RefreshJob {
	return &RefreshJob{
		config:    cfg.Config.withDefaults(),
		logger:    cfg.Logger,
		forecasts: cfg.Forecasts,
		metrics:   cfg.Metrics,
	}
}

// RefreshResult contains the result of a refresh run.
type RefreshResult struct {
	JobID       string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	TotalPoints int
	Successful  int
	Failed      int
	Errors      []RefreshError
}

// RefreshError represents a failed point refresh.
type RefreshError struct {
	Corridor string
	Point    geo.Coordinate
	Error    string
}

// Run refreshes every configured corridor.
func (j *RefreshJob) Run(ctx context.Context) *RefreshResult {
	return j.RunCorridors(ctx, j.config.Corridors)
}

// RunCorridors refreshes the given corridors with bounded concurrency. A failed
// point never stops the others.
func (j *RefreshJob) RunCorridors(ctx context.Context, corridors []Corridor) *RefreshResult {
	startTime := time.Now()
	points := samplePoints(corridors, j.config.SampleMeters)

	result := &RefreshResult{
		JobID:       uuid.NewString(),
		StartTime:   startTime,
		TotalPoints: len(points),
	}

	logger := j.logger.With().Str("job_id", result.JobID).Logger()
	logger.Info().
		Int("corridors", len(corridors)).
		Int("total_points", result.TotalPoints).
		Int("concurrency", j.config.Concurrency).
		Msg("starting forecast refresh job")

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(j.config.Concurrency)

	for _, cp := range points {
		g.Go(func() error {
			err := j.refreshPoint(ctx, cp.point)
			j.metrics.ObserveRefresh(err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, RefreshError{
					Corridor: cp.corridor,
					Point:    cp.point,
					Error:    err.Error(),
				})
				logger.Debug().Err(err).
					Str("corridor", cp.corridor).
					Str("point", cp.point.String()).
					Msg("point refresh failed")
				return nil
			}
			result.Successful++
			return nil
		})
	}
	_ = g.Wait()

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateStats(result)

	logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("forecast refresh job completed")

	return result
}

func (j *RefreshJob) refreshPoint(ctx context.Context, point geo.Coordinate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pointCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	_, err := j.forecasts.Refresh(pointCtx, point)
	return err
}

// Schedule runs the job immediately and then on every tick of interval until
// ctx is cancelled.
func (j *RefreshJob) Schedule(ctx context.Context, interval time.Duration) {
	j.logger.Info().Dur("interval", interval).Msg("starting periodic forecast refresh")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		j.Run(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *RefreshJob) updateStats(result *RefreshResult) {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()

	j.stats.TotalRuns++
	j.stats.SuccessfulRefreshes += int64(result.Successful)
	j.stats.FailedRefreshes += int64(result.Failed)
	j.stats.LastRunAt = result.EndTime
	j.stats.LastRunDuration = result.Duration
	j.stats.TotalDuration += result.Duration
}

// GetStats returns a copy of the current statistics.
func (j *RefreshJob) GetStats() RefreshStats {
	j.statsMu.RLock()
	defer j.statsMu.RUnlock()
	return j.stats
}

// StatsSnapshot returns the current statistics as a map for logging.
func (j *RefreshJob) StatsSnapshot() map[string]interface{} {
	s := j.GetStats()
	return map[string]interface{}{
		"total_runs":           s.TotalRuns,
		"successful_refreshes": s.SuccessfulRefreshes,
		"failed_refreshes":     s.FailedRefreshes,
		"last_run_at":          s.LastRunAt,
		"last_run_duration":    s.LastRunDuration.String(),
		"total_duration":       s.TotalDuration.String(),
	}
}
