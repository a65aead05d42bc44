package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mailroute/mailroute/internal/metrics"
	"github.com/mailroute/mailroute/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "send_event_workers"

	DefaultBatchSize       = 200
	DefaultBlockTimeout    = 5 * time.Second
	DefaultMaxRetries      = 3
	DefaultClaimInterval   = 10 * time.Second
	DefaultClaimIdle       = 30 * time.Second
	DefaultMetricsInterval = 5 * time.Second

	deadLetterMaxLen = 10000
)

// Repository persists send events and their daily rollup.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.SendEvent) error
	UpdateDailyStats(ctx context.Context, events []*model.SendEvent) error
}

// Worker consumes the send event stream in batches.
type Worker struct {
	redis      *redis.Client
	repo       Repository
	logger     *slog.Logger
	metrics    metrics.Recorder
	consumerID string

	batchSize       int
	blockTimeout    time.Duration
	maxRetries      int
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration

	claimStartID string
	lastClaim    time.Time
	lastMetrics  time.Time

	mu       sync.Mutex
	started  bool
	draining bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewConsumerID returns a consumer name unique to this process.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), strings.ToLower(ulid.Make().String()[16:]))
}

// NewWorker creates a send event worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "analytics.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		maxRetries:      DefaultMaxRetries,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimStartID:    "0-0",
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// Run consumes until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	if err := w.ensureConsumerGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}

	w.logger.Info("analytics worker started")

	for {
		w.mu.Lock()
		draining := w.draining
		w.mu.Unlock()
		if draining {
			return nil
		}

		select {
		case <-ctx.Done():
			w.logger.Info("analytics worker stopping")
			return nil
		default:
		}

		if err := w.processOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("process error", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// Shutdown stops the worker after the in-flight batch, or when ctx expires.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.draining = true
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	select {
	case <-done:
		w.logger.Info("analytics worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("analytics worker shutdown timed out")
		return ctx.Err()
	}
}

func (w *Worker) ensureConsumerGroup(ctx context.Context) error {
	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) processOnce(ctx context.Context) error {
	w.maybeUpdateQueueDepth(ctx)

	messages, err := w.maybeClaimPending(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.readBatch(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, ids := w.decodeMessages(ctx, messages)
	if len(events) > 0 {
		if err := w.processBatchWithRetry(ctx, events); err != nil {
			// Left unacknowledged; XAUTOCLAIM will hand them out again.
			return err
		}
	}

	return w.ack(ctx, ids)
}

func (w *Worker) maybeClaimPending(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 {
		return nil, nil
	}
	if !w.lastClaim.IsZero() && time.Since(w.lastClaim) < w.claimInterval {
		return nil, nil
	}
	w.lastClaim = time.Now()

	messages, next, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimStartID,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if next != "" {
		w.claimStartID = next
	}
	return messages, nil
}

func (w *Worker) maybeUpdateQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 {
		return
	}
	if !w.lastMetrics.IsZero() && time.Since(w.lastMetrics) < w.metricsInterval {
		return
	}
	w.lastMetrics = time.Now()

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			w.metrics.SetAnalyticsQueueDepth(g.Pending + g.Lag)
			return
		}
	}
}

func (w *Worker) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) || len(streams) == 0 {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	return streams[0].Messages, nil
}

// decodeMessages returns the valid events and the ids of every message,
// valid or not. Invalid messages are copied to the dead-letter stream.
func (w *Worker) decodeMessages(ctx context.Context, messages []redis.XMessage) ([]*model.SendEvent, []string) {
	events := make([]*model.SendEvent, 0, len(messages))
	ids := make([]string, 0, len(messages))

	for _, msg := range messages {
		ids = append(ids, msg.ID)

		event, reason, err := decodeMessage(msg)
		if err != nil {
			w.deadLetter(ctx, msg, reason, err.Error())
			continue
		}
		events = append(events, event)
	}
	return events, ids
}

// decodeMessage converts one stream entry to a SendEvent. The stream id
// becomes the idempotency key.
func decodeMessage(msg redis.XMessage) (*model.SendEvent, string, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, "invalid_format", errors.New("payload field missing or not a string")
	}

	var p SendEventPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, "unmarshal_error", err
	}
	if err := ValidateSendEventPayload(p); err != nil {
		return nil, "validation_error", err
	}

	return &model.SendEvent{
		ID:              ulid.Make().String(),
		EventID:         msg.ID,
		UserID:          p.UserID,
		TemplateID:      p.TemplateID,
		RecipientDomain: p.RecipientDomain,
		Status:          p.Status,
		ErrorKind:       p.ErrorKind,
		MessageID:       p.MessageID,
		OccurredAt:      time.UnixMilli(p.OccurredAt).UTC(),
	}, "", nil
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering poison message",
		"message_id", msg.ID,
		"reason", reason,
		"detail", detail,
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		ID:     "*",
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		w.logger.Error("failed to write to dead-letter queue", "message_id", msg.ID, "error", err)
	}

	w.metrics.IncAnalyticsEventProcessed("skipped")
}

func (w *Worker) processBatchWithRetry(ctx context.Context, events []*model.SendEvent) error {
	var lastErr error

	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if lastErr = w.processBatch(ctx, events); lastErr == nil {
			return nil
		}

		backoff := time.Duration(1<<attempt) * time.Second
		w.logger.Warn("batch processing failed, retrying",
			"attempt", attempt,
			"backoff_seconds", backoff.Seconds(),
			"error", lastErr,
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	for range events {
		w.metrics.IncAnalyticsEventProcessed("failed")
	}
	return lastErr
}

func (w *Worker) processBatch(ctx context.Context, events []*model.SendEvent) error {
	start := time.Now()

	if err := w.repo.BulkInsert(ctx, events); err != nil {
		return fmt.Errorf("bulk insert: %w", err)
	}
	if err := w.repo.UpdateDailyStats(ctx, events); err != nil {
		return fmt.Errorf("update daily stats: %w", err)
	}

	w.logger.Debug("batch processed", "events_count", len(events), "duration", time.Since(start))

	w.metrics.ObserveAnalyticsBatchSize(len(events))
	w.metrics.ObserveAnalyticsBatchDuration(time.Since(start))
	for _, e := range events {
		w.metrics.IncAnalyticsEventProcessed("success")
		w.metrics.ObserveAnalyticsIngestLag(time.Since(e.OccurredAt))
	}
	return nil
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}
