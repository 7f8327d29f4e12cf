// Package api provides the HTTP API for PathPredict.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pathpredict/pathpredict/internal/api/handler"
	"github.com/pathpredict/pathpredict/internal/api/middleware"
	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/metrics"
	"github.com/pathpredict/pathpredict/internal/provider/resilience"
	"github.com/pathpredict/pathpredict/internal/severity"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version            string
	BuildTime          string
	Logger             zerolog.Logger
	ServiceName        string
	Planner            handler.Planner
	Geocoder           handler.Geocoder
	Policy             severity.Policy
	FeatureFlagService *featureflags.Service
	Registry           *resilience.Registry
	ReadinessChecks    []handler.ReadinessCheck
	CacheReports       []handler.CacheReport
	RequireTLS         bool

	// Metrics records OpenTelemetry HTTP metrics (optional).
	Metrics *middleware.Metrics

	// DomainMetrics serves the Prometheus registry on /metrics (optional).
	DomainMetrics *metrics.Metrics

	// AdminToken guards /v1/admin; empty disables the admin endpoints.
	AdminToken string

	// RateLimits defaults to middleware.DefaultRateLimits.
	RateLimits *middleware.RateLimits
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "pathpredict-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	policy := cfg.Policy
	if policy.Conditions == nil {
		policy = severity.DefaultPolicy()
	}

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Flags:     cfg.FeatureFlagService,
		Checks:    cfg.ReadinessChecks,
		Caches:    cfg.CacheReports,
	})
	plannerHandler := handler.NewPlannerHandler(cfg.Planner, cfg.FeatureFlagService, cfg.Logger)
	geocodingHandler := handler.NewGeocodingHandler(cfg.Geocoder, cfg.Logger)
	metadataHandler := handler.NewMetadataHandler(policy)
	featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)

	limits := middleware.DefaultRateLimits()
	if cfg.RateLimits != nil {
		limits = *cfg.RateLimits
	}
	adminRateLimit := middleware.RateLimitByIP(limits.Admin)
	departureRateLimit := middleware.RateLimitByIP(limits.Departures)
	standardRateLimit := middleware.RateLimitByIP(limits.Standard)

	r.Get("/", opsHandler.Info)
	r.Handle("/metrics", cfg.DomainMetrics.Handler())

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireJSON)

		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Metadata endpoints (public) - standard rate limiting
		r.Route("/metadata", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/enums", metadataHandler.GetEnums)
			r.Get("/weather-codes", metadataHandler.ListWeatherCodes)
			r.Get("/risk-thresholds", metadataHandler.GetRiskThresholds)
		})

		// Route planning - one route fetch plus a forecast per segment
		r.With(standardRateLimit).Post("/routes:plan", plannerHandler.PlanRoute)

		// Departure scan - up to window x segments forecast lookups
		r.With(departureRateLimit).Post("/departures:recommend", plannerHandler.RecommendDeparture)

		r.With(standardRateLimit).Post("/weather:forecast", plannerHandler.GetForecast)

		r.Route("/geocoding", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/search", geocodingHandler.Search)
			r.Get("/reverse", geocodingHandler.Reverse)
		})

		// Admin endpoints (token protected) - for internal operations
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminRateLimit)
			r.Use(middleware.AdminToken(cfg.AdminToken))

			// Feature flags management
			r.Route("/flags", func(r chi.Router) {
				r.Get("/", featureFlagsHandler.ListFeatureFlags)
				r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
				r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
			})
		})
	})

	return r
}
