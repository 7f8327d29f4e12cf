package resilience

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without contacting the provider while its
// breaker is open or already probing.
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultTimeout         = 10 * time.Second
	defaultInitialInterval = 100 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	// Name labels the breaker, log lines and registry entry.
	Name string

	// Timeout bounds each attempt. Default 10s.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a 5xx or transport
	// error. Zero reports the first failure as is.
	MaxRetries uint64

	// InitialInterval and MaxInterval bound the exponential backoff between
	// attempts. Defaults 100ms and 5s.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker overrides DefaultCircuitBreakerConfig(Name).
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client and the outcome of every call.
	Registry *Registry

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings every collaborator client starts
// from: one attempt per call behind the default breaker.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         defaultTimeout,
		InitialInterval: defaultInitialInterval,
		MaxInterval:     defaultMaxInterval,
		CircuitBreaker:  &breaker,
	}
}

// Client is an HTTPDoer for collaborator APIs that fails fast while the
// provider is down.
type Client struct {
	name     string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	registry *Registry

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewClient builds a client from cfg, filling zero durations with defaults,
// and registers it when cfg.Registry is set.
func NewClient(cfg ClientConfig) *Client {
	breakerCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		breakerCfg = *cfg.CircuitBreaker
	}
	if breakerCfg.OnStateChange == nil {
		logger := cfg.Logger
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Stringer("from", from).
				Stringer("to", to).
				Msg("circuit breaker state changed")
		}
	}

	c := &Client{
		name:            cfg.Name,
		http:            &http.Client{Timeout: orDefault(cfg.Timeout, defaultTimeout)},
		breaker:         NewCircuitBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type parameter
		registry:        cfg.Registry,
		maxRetries:      cfg.MaxRetries,
		initialInterval: orDefault(cfg.InitialInterval, defaultInitialInterval),
		maxInterval:     orDefault(cfg.MaxInterval, defaultMaxInterval),
	}
	if c.registry != nil {
		c.registry.Register(c.name, c)
	}
	return c
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Do sends req through the breaker. 5xx responses and transport errors count
// as failures and are retried with backoff up to MaxRetries times. The last
// 5xx response is still returned with a nil error so callers can map its
// status and body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var last *http.Response
	attempt := func() error {
		discard(last)
		last = nil

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			return c.send(req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		last = resp
		return err
	}

	err := backoff.Retry(attempt, c.policy(req))
	if c.registry != nil {
		c.registry.Record(c.name, req.URL.Path, time.Since(start), err)
	}
	if err != nil && last == nil {
		return nil, err
	}
	return last, nil
}

func (c *Client) policy(req *http.Request) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxInterval = c.maxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), req.Context())
}

// send performs one attempt on a copy of req with a rewound body.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = body
	}

	resp, err := c.http.Do(out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return resp, &ServerError{StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func discard(resp *http.Response) {
	if resp == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ServerError is the failure recorded for a 5xx response.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Name returns the name the client was configured with.
func (c *Client) Name() string {
	return c.name
}

// State returns the current breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
