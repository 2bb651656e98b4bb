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

// Job types accepted on the trigger subscription.
const (
	JobTypeCollect  = "collect"
	JobTypeKeyCheck = "key_check"
)

// PubSubHandler triggers collection runs from Pub/Sub messages.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Job              *CollectJob
	Logger           zerolog.Logger
}

// RunMessage is the trigger payload. An empty body is a collect request.
type RunMessage struct {
	JobType string `json:"job_type"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       NewDispatcher(cfg.Job, cfg.Logger),
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := h.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if h.dispatcher.Handle(ctx, logger, msg.Data) {
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

// Dispatcher decides what a trigger message does and whether it is acknowledged.
type Dispatcher struct {
	job    *CollectJob
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher for job.
func NewDispatcher(job *CollectJob, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{job: job, logger: logger}
}

// Handle processes one message body and reports whether it should be acked.
// A message arriving while a run is active is nacked for redelivery. A run
// that completes, successfully or not, is acked; its outcome is in the status
// file.
func (d *Dispatcher) Handle(ctx context.Context, logger zerolog.Logger, data []byte) bool {
	startTime := time.Now()

	logger.Debug().Msg("received pubsub message")

	var runMsg RunMessage
	if len(data) > 0 {
		if err := json.Unmarshal(data, &runMsg); err != nil {
			logger.Error().Err(err).Msg("failed to parse message, dropping")
			return true
		}
	}
	if runMsg.JobType == "" {
		runMsg.JobType = JobTypeCollect
	}

	switch runMsg.JobType {
	case JobTypeCollect:
		result, err := d.job.TryRun(ctx)
		if errors.Is(err, ErrRunInProgress) {
			logger.Warn().Msg("collection already running, message will be redelivered")
			return false
		}

		logger.Info().
			Str("job_type", runMsg.JobType).
			Str("run_id", result.RunID).
			Str("status", string(result.Status)).
			Dur("duration", time.Since(startTime)).
			Msg("job completed")
		return true

	case JobTypeKeyCheck:
		if err := d.job.fetcher.ValidateKey(ctx, d.job.config.Probe()); err != nil {
			logger.Error().Err(err).Msg("key check failed")
			return true
		}
		logger.Info().Dur("duration", time.Since(startTime)).Msg("key check passed")
		return true

	default:
		logger.Warn().Str("job_type", runMsg.JobType).Msg("unknown job type")
		return true // Ack unknown messages to prevent redelivery
	}
}
