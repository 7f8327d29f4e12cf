package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the subscription.
const (
	JobForecastRefresh = "forecast_refresh"
	JobHealthCheck     = "health_check"
)

var (
	// ErrMalformedMessage is returned for payloads that are not valid job JSON.
	ErrMalformedMessage = errors.New("malformed job message")

	// ErrUnknownJobType is returned for job types this worker does not handle.
	ErrUnknownJobType = errors.New("unknown job type")
)

// JobMessage is the payload of a worker job.
type JobMessage struct {
	Type string `json:"type"`

	// Corridors overrides the configured corridors for a refresh job.
	Corridors []Corridor `json:"corridors,omitempty"`
}

// Processor executes decoded job messages.
type Processor struct {
	job    *RefreshJob
	logger zerolog.Logger
}

// NewProcessor creates a processor backed by the refresh job.
func NewProcessor(job *RefreshJob, logger zerolog.Logger) *Processor {
	return &Processor{job: job, logger: logger}
}

// Process decodes and runs a single job.
func (p *Processor) Process(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch msg.Type {
	case JobForecastRefresh:
		return p.forecastRefresh(ctx, msg)
	case JobHealthCheck:
		return p.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, msg.Type)
	}
}

func (p *Processor) forecastRefresh(ctx context.Context, msg JobMessage) error {
	corridors := msg.Corridors
	if len(corridors) == 0 {
		corridors = p.job.config.Corridors
	}

	result := p.job.RunCorridors(ctx, corridors)

	// Consider it successful if at least half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.TotalPoints)
	}
	return nil
}

func (p *Processor) healthCheck(ctx context.Context) error {
	p.logger.Debug().Msg("running health check")

	// Refresh a single point to verify provider connectivity.
	probe := Corridor{Name: "health-check"}
	for _, c := range p.job.config.Corridors {
		if len(c.Waypoints) > 0 {
			probe.Waypoints = c.Waypoints[:1]
			break
		}
	}
	if len(probe.Waypoints) == 0 {
		return errors.New("health check: no corridor waypoints configured")
	}

	result := p.job.RunCorridors(ctx, []Corridor{probe})
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %s", result.Errors[0].Error)
	}

	p.logger.Debug().Msg("health check passed")
	return nil
}

// PubSubHandler receives jobs from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	processor        *Processor
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Processor        *Processor
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		processor:        cfg.Processor,
		logger:           cfg.Logger,
	}, nil
}

// Start blocks processing messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if Acknowledge(ctx, h.processor, msg.Data, h.messageLogger(msg)) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) messageLogger(msg *pubsub.Message) zerolog.Logger {
	return h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()
}

// Acknowledge processes a message payload and reports whether it should be
// acked. Payloads that can never succeed are acked to prevent redelivery.
func Acknowledge(ctx context.Context, p *Processor, data []byte, logger zerolog.Logger) bool {
	startTime := time.Now()
	logger.Debug().Msg("received job message")

	err := p.Process(ctx, data)
	switch {
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUnknownJobType):
		logger.Warn().Err(err).Msg("dropping job message")
		return true
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		return false
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}
