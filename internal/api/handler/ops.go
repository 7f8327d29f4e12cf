// Package handler provides HTTP handlers for the PathPredict API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/pathpredict/pathpredict/internal/api/models"
	"github.com/pathpredict/pathpredict/internal/api/response"
	"github.com/pathpredict/pathpredict/internal/featureflags"
	"github.com/pathpredict/pathpredict/internal/provider/resilience"
)

// ReadinessCheck probes a dependency the API needs to serve traffic.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// CacheReport snapshots one cache for the status endpoint.
type CacheReport func() models.CacheStatus

// OpsConfig holds the dependencies of OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Registry  *resilience.Registry
	Flags     *featureflags.Service
	Checks    []ReadinessCheck
	Caches    []CacheReport
	// CheckTimeout bounds each readiness probe (default 2s).
	CheckTimeout time.Duration
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &OpsHandler{cfg: cfg}
}

// Info handles GET / - service information.
func (h *OpsHandler) Info(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.ServiceInfo{
		Name:      "PathPredict API",
		Version:   h.cfg.Version,
		BuildTime: h.cfg.BuildTime,
		Endpoints: []string{
			"POST /v1/routes:plan",
			"POST /v1/departures:recommend",
			"POST /v1/weather:forecast",
			"GET /v1/geocoding/search",
			"GET /v1/geocoding/reverse",
			"GET /v1/metadata/enums",
			"GET /v1/metadata/weather-codes",
			"GET /v1/metadata/risk-thresholds",
			"GET /v1/ops/health",
			"GET /v1/ops/ready",
			"GET /v1/ops/status",
		},
	})
}

// HealthCheck handles GET /v1/ops/health - liveness check with provider circuit states.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	details := map[string]any{
		"version":   h.cfg.Version,
		"buildTime": h.cfg.BuildTime,
	}
	if h.cfg.Registry != nil {
		circuits := make(map[string]string, h.cfg.Registry.Len())
		for _, p := range h.cfg.Registry.Providers() {
			circuits[p.Name] = p.State.String()
		}
		details["circuits"] = circuits
	}

	health := models.Health{
		Status:  models.HealthStatusOK,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
// Any failing dependency probe makes the service unready.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := models.HealthStatusOK
	details := make(map[string]any, len(h.cfg.Checks))

	for _, c := range h.cfg.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CheckTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			status = models.HealthStatusFail
			details[c.Name] = err.Error()
			continue
		}
		details[c.Name] = "ok"
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
		Caches:     make([]models.CacheStatus, 0, len(h.cfg.Caches)),
	}

	for _, report := range h.cfg.Caches {
		status.Caches = append(status.Caches, report())
	}

	for _, c := range h.cfg.Checks {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.CheckTimeout)
		err := c.Check(ctx)
		cancel()
		sub := models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			status.Status = models.HealthStatusDegraded
		}
		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.cfg.Registry != nil {
		for _, p := range h.cfg.Registry.Providers() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        providerHealthStatus(p),
				CircuitState:  p.State.String(),
				LastSuccessAt: models.OptionalTimestamp(p.LastSuccess),
				LastFailureAt: models.OptionalTimestamp(p.LastFailure),
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			if ps.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	// Disabled flags mark features running in a degraded mode.
	for _, key := range []string{
		featureflags.FlagTrendEstimation,
		featureflags.FlagConcurrentDepartureScan,
		featureflags.FlagGeoJSONOutput,
	} {
		if h.cfg.Flags.IsDisabled(r.Context(), key) {
			status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, key)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerHealthStatus(p resilience.ProviderHealth) models.HealthStatus {
	switch p.Status() {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
