package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	_, err := r.conn(ctx).ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// GetPendingEventsWithLock must run inside a transaction for the row locks to
// outlive the query.
func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, error_message, created_at, processed_at, updated_at,
			retry_count, retry_at
		FROM outbox_events
		WHERE status = 'pending'
		OR (status = 'failed' AND retry_at IS NOT NULL AND retry_at <= NOW())
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	events := []*model.OutboxEvent{}
	if err := r.conn(ctx).SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_at = $4,
			retry_count = CASE WHEN $1 = 'failed' THEN retry_count + 1 ELSE retry_count END,
			processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $3
	`
	res, err := r.conn(ctx).ExecContext(ctx, query, status, errorMessage, id, retryAt)
	if err != nil {
		return fmt.Errorf("failed to update outbox event: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
