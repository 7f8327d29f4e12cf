package models

// ServiceInfo is served on GET /.
type ServiceInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	BuildTime string   `json:"buildTime,omitempty"`
	Endpoints []string `json:"endpoints"`
}

// Health answers the liveness and readiness probes. Details carries circuit
// states or per-dependency check results.
type Health struct {
	Status  HealthStatus   `json:"status"`
	Time    Timestamp      `json:"time"`
	Details map[string]any `json:"details,omitempty"`
}

// SystemStatus is the operator view on GET /v1/ops/status.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Providers  []ProviderStatus  `json:"providers"`
	Caches     []CacheStatus     `json:"caches"`

	// ActiveDegradationFlags lists planner features switched off.
	ActiveDegradationFlags []string `json:"activeDegradationFlags,omitempty"`
}

// SubsystemStatus is one readiness dependency such as redis or postgres.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus is the breaker view of one routing, weather or geocoding client.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	CircuitState  string       `json:"circuitState"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// CacheStatus counts entries held by one in-process cache.
type CacheStatus struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Fresh   int    `json:"fresh"`
	Stale   int    `json:"stale"`
	Shared  bool   `json:"shared"`
}
