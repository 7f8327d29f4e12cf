// Package main provides the entrypoint for the PathPredict forecast worker.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/app"
	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/internal/telemetry"
	"github.com/pathpredict/pathpredict/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "pathpredict-worker"

	configPath := flag.String("config", os.Getenv("PATHPREDICT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := app.NewLogger(cfg.App, os.Stdout, serviceName, Version)

	if err := cfg.Validate(false); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting PathPredict worker")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, cfg.TelemetryFor(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build services")
		return
	}
	defer func() {
		if closeErr := components.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close connections")
		}
	}()
	if components.Redis == nil {
		log.Warn().Msg("no shared cache configured - refreshed forecasts stay in this process")
	}

	corridors, err := workerCorridors(cfg.Worker.Corridors)
	if err != nil {
		log.Error().Err(err).Msg("invalid worker corridors")
		return
	}

	job := worker.NewRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Corridors:    corridors,
			SampleMeters: cfg.Worker.SampleMeters,
			Concurrency:  cfg.Worker.Concurrency,
			Timeout:      cfg.Worker.Timeout,
		},
		Logger:    log,
		Forecasts: components.Forecasts,
		Metrics:   components.Metrics,
	})

	// Worker also exposes health and metrics endpoints for Cloud Run.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"refresh": job.StatsSnapshot(),
		})
	})
	mux.Handle("/metrics", components.Metrics.Handler())

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if !cfg.Worker.UsesPubSub() {
			job.Schedule(ctx, cfg.Worker.Interval)
			return
		}

		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.ProjectID,
			SubscriptionName: cfg.Worker.Subscription,
			Processor:        worker.NewProcessor(job, log),
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler, falling back to periodic refresh")
			job.Schedule(ctx, cfg.Worker.Interval)
			return
		}
		defer func() { _ = handler.Close() }()

		if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("pubsub handler stopped")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

// workerCorridors converts configured corridors; none configured yields nil so
// the job falls back to its defaults.
func workerCorridors(configured []config.Corridor) ([]worker.Corridor, error) {
	if len(configured) == 0 {
		return nil, nil
	}
	corridors := make([]worker.Corridor, 0, len(configured))
	for _, c := range configured {
		coords, err := c.Coordinates()
		if err != nil {
			return nil, err
		}
		corridors = append(corridors, worker.Corridor{Name: c.Name, Waypoints: coords})
	}
	return corridors, nil
}
