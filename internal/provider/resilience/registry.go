package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Provider health states reported to operators.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// ProviderHealth is a point-in-time view of one collaborator client.
type ProviderHealth struct {
	Name   string
	State  gobreaker.State
	Counts gobreaker.Counts

	// LastSuccess and LastFailure are zero until the first such call.
	LastSuccess time.Time
	LastFailure time.Time
	LastError   string
}

// Status maps the breaker state: closed is healthy, half-open degraded and
// open unhealthy.
func (h ProviderHealth) Status() string {
	switch h.State {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// RequestObserver receives the outcome and latency of every provider call.
type RequestObserver interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
}

// Registry tracks collaborator clients by name along with their last outcomes.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*registryEntry
	observer RequestObserver
}

type registryEntry struct {
	client      *Client
	lastSuccess time.Time
	lastFailure time.Time
	lastError   string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds client under name, replacing any earlier client of that name.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	r.entries[name] = &registryEntry{client: client}
	r.mu.Unlock()
}

// SetObserver installs an observer for calls made by registered clients.
func (r *Registry) SetObserver(observer RequestObserver) {
	r.mu.Lock()
	r.observer = observer
	r.mu.Unlock()
}

// Record notes the outcome of one call made by the named client and passes
// it on to the observer. Outcomes for unknown names only reach the observer.
func (r *Registry) Record(name, operation string, duration time.Duration, err error) {
	now := time.Now()

	r.mu.Lock()
	if e, ok := r.entries[name]; ok {
		if err == nil {
			e.lastSuccess = now
		} else {
			e.lastFailure = now
			e.lastError = err.Error()
		}
	}
	observer := r.observer
	r.mu.Unlock()

	if observer != nil {
		observer.RecordRequest(name, operation, duration, err)
	}
}

// Health reports on a single client.
func (r *Registry) Health(name string) (ProviderHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return ProviderHealth{}, false
	}
	return e.snapshot(name), true
}

// Providers reports on every registered client, ordered by name.
func (r *Registry) Providers() []ProviderHealth {
	r.mu.RLock()
	out := make([]ProviderHealth, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.snapshot(name))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b ProviderHealth) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (e *registryEntry) snapshot(name string) ProviderHealth {
	return ProviderHealth{
		Name:        name,
		State:       e.client.breaker.State(),
		Counts:      e.client.breaker.Counts(),
		LastSuccess: e.lastSuccess,
		LastFailure: e.lastFailure,
		LastError:   e.lastError,
	}
}
