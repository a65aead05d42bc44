// Package analytics moves send events from the request path to Postgres
// through a Redis stream.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailroute/mailroute/internal/metrics"
)

const (
	// StreamKey is the Redis stream for send events.
	StreamKey = "stream:send_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:send_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// SendEventPayload is the compact event format written to the stream.
type SendEventPayload struct {
	UserID          string `json:"uid"`
	TemplateID      string `json:"tid"`
	RecipientDomain string `json:"rd,omitempty"`
	Status          string `json:"s"`
	ErrorKind       string `json:"ek,omitempty"`
	MessageID       string `json:"mid,omitempty"`
	OccurredAt      int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues send events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new send event publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Publish adds an event to the stream synchronously and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, event SendEventPayload) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{"payload": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return id, nil
}

// PublishAsync publishes without blocking the caller. A failed publish is
// logged and counted as dropped; it never affects the send result.
func (p *Publisher) PublishAsync(event SendEventPayload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, event)
		if err != nil {
			p.logger.Warn("failed to publish send event",
				"user_id", event.UserID,
				"status", event.Status,
				"error", err,
			)
			p.metrics.IncAnalyticsEventPublished("dropped")
			return
		}

		p.logger.Debug("send event published", "user_id", event.UserID, "stream_id", streamID)
		p.metrics.IncAnalyticsEventPublished("success")
	}()
}
