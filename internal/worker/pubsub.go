package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the control subscription.
const (
	JobEvaluateAlerts = "evaluate_alerts"
	JobHealthCheck    = "health_check"
)

// ErrMalformedMessage is returned for messages that are not valid JSON.
var ErrMalformedMessage = errors.New("malformed job message")

// JobMessage represents a control message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Targets limits evaluate_alerts to the named targets.
	Targets []string `json:"targets,omitempty"`
}

// MessageHandler runs jobs requested by control messages.
type MessageHandler struct {
	job    *WatchJob
	logger zerolog.Logger
}

// NewMessageHandler creates a handler that runs jobs on job.
func NewMessageHandler(job *WatchJob, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{job: job, logger: logger}
}

// Handle runs the job a message asks for. Unknown job types are ignored so
// the message can be acked; a non-nil error means the message should be
// redelivered.
func (h *MessageHandler) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	switch msg.JobType {
	case JobEvaluateAlerts:
		return h.handleEvaluateAlerts(ctx, msg)
	case JobHealthCheck:
		return h.handleHealthCheck(ctx)
	default:
		h.logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return nil
	}
}

func (h *MessageHandler) handleEvaluateAlerts(ctx context.Context, msg JobMessage) error {
	targets := h.job.config.Targets
	if len(msg.Targets) > 0 {
		targets = selectTargets(targets, msg.Targets)
		if len(targets) == 0 {
			h.logger.Warn().Strs("targets", msg.Targets).Msg("no matching watch targets")
			return nil
		}
	}

	result := h.job.run(ctx, targets)

	// Consider it successful if at least half succeeded.
	if result.Failed > result.Successful {
		return fmt.Errorf("too many evaluation failures: %d/%d", result.Failed, result.Targets)
	}
	return nil
}

func (h *MessageHandler) handleHealthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	// A single target is enough to verify provider connectivity.
	result := h.job.run(ctx, h.job.config.Targets[:1])
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}

func selectTargets(all []WatchTarget, names []string) []WatchTarget {
	var selected []WatchTarget
	for _, t := range all {
		for _, n := range names {
			if strings.EqualFold(t.Name, n) {
				selected = append(selected, t)
				break
			}
		}
	}
	return selected
}

// PubSubHandler receives control messages from a Pub/Sub subscription.
type PubSubHandler struct {
	*MessageHandler

	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Job              *WatchJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		MessageHandler:   NewMessageHandler(cfg.Job, cfg.Logger),
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if err := h.Handle(ctx, msg.Data); err != nil {
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")

	msg.Ack()
}
