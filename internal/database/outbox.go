package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/price-monitor/internal/events"
)

// Outbox row states. failed rows are retried until MaxRetryCount, then
// parked as dead_letter.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusProcessed  = "processed"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	MaxRetryCount = 5

	maxBackoff = 5 * time.Minute
)

// OutboxEvent is one row of the transactional outbox.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

// NewScrapeCompletedEvent wraps a scrape payload into an outbox row.
func NewScrapeCompletedEvent(p *events.ScrapeCompletedPayload, stream string) (*OutboxEvent, error) {
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		AggregateType: events.AggregateTypeURL,
		AggregateID:   p.URLID,
		EventType:     p.EventType,
		Payload:       data,
		TargetStream:  stream,
	}, nil
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, target_stream,
	status, retry_count, error_message, created_at, processed_at, next_retry_at`

type OutboxRepository struct {
	db  *DB
	now func() time.Time
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

// InsertWithTx adds event inside tx, so it commits or rolls back together
// with the write that produced it. Unset fields get their defaults.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	now := r.now()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = events.DefaultStream
	}
	if event.NextRetryAt == nil {
		event.NextRetryAt = &now
	}
	event.CreatedAt = now

	_, err := tx.Exec(ctx, `INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload, event.TargetStream,
		event.Status, event.RetryCount, event.ErrorMessage, event.CreatedAt, event.ProcessedAt, event.NextRetryAt)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

// GetPending returns up to limit events that are due, oldest first.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_events
		WHERE status IN ($1, $2) AND next_retry_at <= $3
		ORDER BY created_at ASC
		LIMIT $4`,
		OutboxStatusPending, OutboxStatusFailed, r.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}

	pending, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxEvent])
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox events: %w", err)
	}
	return pending, nil
}

func (r *OutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_events
		SET status = $2, processed_at = $3, error_message = NULL
		WHERE id = $1`,
		id, OutboxStatusProcessed, r.now())
	if err != nil {
		return fmt.Errorf("failed to mark event as processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event not found: %s", id)
	}
	return nil
}

// MarkFailed counts the attempt and schedules the next one. The row is locked
// while the retry count is bumped so concurrent relays cannot lose an attempt.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var retries int
		err := tx.QueryRow(ctx,
			`SELECT retry_count FROM outbox_events WHERE id = $1 FOR UPDATE`, id).Scan(&retries)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("event not found: %s", id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock outbox event: %w", err)
		}

		retries++
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events
			SET status = $2, retry_count = $3, error_message = $4, next_retry_at = $5
			WHERE id = $1`,
			id, nextOutboxStatus(retries), retries, processErr.Error(), calculateNextRetryTime(r.now(), retries))
		if err != nil {
			return fmt.Errorf("failed to mark event as failed: %w", err)
		}
		return nil
	})
}

// CountByStatus reports the outbox backlog. pending, failed and dead_letter
// are always present.
func (r *OutboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.pool.Query(ctx, `SELECT status, COUNT(*) FROM outbox_events GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox events: %w", err)
	}

	counts := map[string]int64{
		OutboxStatusPending:    0,
		OutboxStatusFailed:     0,
		OutboxStatusDeadLetter: 0,
	}
	var (
		status string
		n      int64
	)
	_, err = pgx.ForEachRow(rows, []any{&status, &n}, func() error {
		counts[status] = n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan outbox counts: %w", err)
	}
	return counts, nil
}

func nextOutboxStatus(retryCount int) string {
	if retryCount >= MaxRetryCount {
		return OutboxStatusDeadLetter
	}
	return OutboxStatusFailed
}

// calculateNextRetryTime backs off 2^n seconds, capped at five minutes.
func calculateNextRetryTime(now time.Time, retryCount int) time.Time {
	if retryCount >= 9 {
		return now.Add(maxBackoff)
	}
	return now.Add(min(time.Duration(1<<retryCount)*time.Second, maxBackoff))
}
