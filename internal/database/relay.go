package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/price-monitor/internal/metrics"
)

const relaySource = "price-monitor"

// RedisClient is the part of go-redis the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the outbox the relay drains.
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
}

// Relay copies committed outbox events onto their Redis streams. Delivery is
// at least once: an event whose MarkProcessed fails is published again.
type Relay struct {
	redis     RedisClient
	outbox    OutboxRepo
	metrics   *metrics.Metrics
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

func NewRelay(db *DB, redisClient RedisClient, m *metrics.Metrics, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		redis:     redisClient,
		outbox:    NewOutboxRepository(db),
		metrics:   m,
		logger:    logger.With("component", "relay"),
		interval:  cfg.PollInterval,
		batchSize: cfg.BatchSize,
	}
}

// Start drains the outbox immediately and then every poll interval until ctx
// is cancelled, returning ctx.Err().
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.processEvents(ctx); err != nil {
			r.logger.Error("failed to process events", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// processEvents handles one batch. Per-event failures are recorded on the
// event and do not abort the batch.
func (r *Relay) processEvents(ctx context.Context) error {
	pending, err := r.outbox.GetPending(ctx, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	published, failed := 0, 0
	for _, event := range pending {
		if err := r.processEvent(ctx, event); err != nil {
			failed++
			r.logger.Warn("event not published",
				"event_id", event.ID,
				"aggregate_id", event.AggregateID,
				"retry_count", event.RetryCount,
				"error", err)
			continue
		}
		published++
	}

	r.logger.Debug("outbox batch relayed", "published", published, "failed", failed)
	return nil
}

func (r *Relay) processEvent(ctx context.Context, event *OutboxEvent) error {
	if err := r.publishToRedis(ctx, event); err != nil {
		r.metrics.IncOutbox("failed")
		if markErr := r.outbox.MarkFailed(ctx, event.ID, err); markErr != nil {
			r.logger.Error("failed to record publish failure", "event_id", event.ID, "error", markErr)
		}
		return err
	}

	r.metrics.IncOutbox("published")
	if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("published but not marked processed: %w", err)
	}
	return nil
}

func (r *Relay) publishToRedis(ctx context.Context, event *OutboxEvent) error {
	values, err := streamValues(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: values,
	}
	if _, err := r.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// streamEnvelope is the JSON document stored under the "data" field of each
// stream entry.
type streamEnvelope struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     string          `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source       string `json:"source"`
	OutboxID     string `json:"outbox_id"`
	RetryCount   int    `json:"retry_count"`
	TargetStream string `json:"target_stream"`
}

// streamValues builds the XADD field map. The payload must be valid JSON; a
// malformed payload fails here rather than downstream.
func streamValues(event *OutboxEvent) (map[string]any, error) {
	if !json.Valid(event.Payload) {
		return nil, fmt.Errorf("invalid payload for event %s", event.ID)
	}

	data, err := json.Marshal(streamEnvelope{
		ID:            event.ID.String(),
		Type:          event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Timestamp:     event.CreatedAt.UTC().Format(time.RFC3339),
		Payload:       event.Payload,
		Metadata: streamMetadata{
			Source:       relaySource,
			OutboxID:     event.ID.String(),
			RetryCount:   event.RetryCount,
			TargetStream: event.TargetStream,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream entry: %w", err)
	}

	return map[string]any{
		"data":           string(data),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"original_id":    event.ID.String(),
		"timestamp":      strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
	}, nil
}
