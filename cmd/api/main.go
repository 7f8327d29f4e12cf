// Package main provides the entrypoint for the PathPredict API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pathpredict/pathpredict/internal/api"
	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/app"
	"github.com/pathpredict/pathpredict/internal/config"
	"github.com/pathpredict/pathpredict/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName     = "pathpredict-api"
	shutdownTimeout = 30 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("PATHPREDICT_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}
	log := app.NewLogger(cfg.App, os.Stdout, serviceName, Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("api server exited")
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
	log.Info().Msg("server stopped")
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if err := cfg.Validate(true); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.App.Env).
		Msg("starting PathPredict API")

	tp, err := telemetry.Init(ctx, cfg.TelemetryFor(serviceName, Version))
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			log.Error().Err(err).Msg("failed to flush telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("telemetry export enabled")
	}

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("creating http metrics: %w", err)
	}

	components, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("building services: %w", err)
	}
	defer func() {
		if err := components.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close connections")
		}
	}()

	if cfg.Admin.Token == "" {
		log.Warn().Msg("admin token not configured, admin endpoints are disabled")
	}
	limits := middleware.PerMinute(cfg.RateLimit.Standard, cfg.RateLimit.Departures, cfg.RateLimit.Admin)

	server := &http.Server{
		Addr: ":" + strconv.Itoa(cfg.App.Port),
		Handler: api.NewRouter(api.RouterConfig{
			Version:            Version,
			BuildTime:          BuildTime,
			Logger:             log,
			ServiceName:        serviceName,
			Planner:            components.Planner,
			Geocoder:           components.Geocoder,
			Policy:             components.Policy,
			FeatureFlagService: components.Flags,
			Registry:           components.Registry,
			ReadinessChecks:    components.ReadinessChecks(),
			CacheReports:       components.CacheReports(),
			RequireTLS:         cfg.App.RequireTLS,
			Metrics:            httpMetrics,
			DomainMetrics:      components.Metrics,
			AdminToken:         cfg.Admin.Token,
			RateLimits:         &limits,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")

		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(drainCtx)
	})
	return g.Wait()
}
