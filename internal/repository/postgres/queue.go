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

const queueColumns = `id, appointment_id, clinic_location, queue_date, queue_number, queue_status,
	dentist_id, room_id, created_at, updated_at`

type queueRepository struct {
	BaseRepository
}

func NewQueueRepository(db *sqlx.DB) repository.QueueRepository {
	return &queueRepository{NewBaseRepository(db)}
}

// NextNumber serializes numbering per location and day with a transaction
// scoped advisory lock.
func (r *queueRepository) NextNumber(ctx context.Context, location string, day time.Time) (int, error) {
	date := day.Format(model.DateLayout)
	q := r.conn(ctx)
	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2::text))`, location, date); err != nil {
		return 0, fmt.Errorf("failed to lock queue numbering: %w", err)
	}

	var n int
	query := `
		SELECT COALESCE(MAX(queue_number), 0) + 1
		FROM queue_entries
		WHERE clinic_location = $1 AND queue_date = $2`
	if err := q.GetContext(ctx, &n, query, location, date); err != nil {
		return 0, fmt.Errorf("failed to read next queue number: %w", err)
	}
	return n, nil
}

func (r *queueRepository) Create(ctx context.Context, entry *model.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (
			id, appointment_id, clinic_location, queue_date, queue_number, queue_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.conn(ctx).ExecContext(ctx, query,
		entry.ID,
		entry.AppointmentID,
		entry.ClinicLocation,
		entry.QueueDate.Format(model.DateLayout),
		entry.QueueNumber,
		entry.QueueStatus,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue entry: %w", err)
	}
	return nil
}

func (r *queueRepository) Renumber(ctx context.Context, id uuid.UUID, day time.Time, number int) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE queue_entries SET queue_date = $1, queue_number = $2, updated_at = NOW() WHERE id = $3`,
		day.Format(model.DateLayout), number, id)
	if err != nil {
		return fmt.Errorf("failed to renumber queue entry: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *queueRepository) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := r.conn(ctx).GetContext(ctx, &e, `SELECT `+queueColumns+` FROM queue_entries WHERE id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *queueRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	var e model.QueueEntry
	if err := r.conn(ctx).GetContext(ctx, &e, `SELECT `+queueColumns+` FROM queue_entries WHERE id = $1 FOR UPDATE`, id); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *queueRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	var e model.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM queue_entries WHERE appointment_id = $1`
	if err := r.conn(ctx).GetContext(ctx, &e, query, appointmentID); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (r *queueRepository) Bind(ctx context.Context, id uuid.UUID, dentistID, roomID uuid.UUID) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE queue_entries SET dentist_id = $1, room_id = $2, updated_at = NOW() WHERE id = $3`,
		dentistID, roomID, id)
	if err != nil {
		return fmt.Errorf("failed to bind queue entry: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *queueRepository) Release(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE queue_entries SET dentist_id = NULL, room_id = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to release queue entry: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *queueRepository) Mirror(ctx context.Context, appointmentID uuid.UUID, status model.AppointmentStatus) error {
	_, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE queue_entries SET queue_status = $1, updated_at = NOW() WHERE appointment_id = $2`,
		model.ProjectQueueStatus(status), appointmentID)
	if err != nil {
		return fmt.Errorf("failed to mirror queue status: %w", err)
	}
	return nil
}

func (r *queueRepository) ListByDay(ctx context.Context, location string, day time.Time) ([]*model.QueueEntry, error) {
	entries := []*model.QueueEntry{}
	query := `SELECT ` + queueColumns + ` FROM queue_entries
		WHERE clinic_location = $1 AND queue_date = $2
		ORDER BY queue_number`
	if err := r.conn(ctx).SelectContext(ctx, &entries, query, location, day.Format(model.DateLayout)); err != nil {
		return nil, fmt.Errorf("failed to list queue entries: %w", err)
	}
	return entries, nil
}

func (r *queueRepository) CountRoomBindings(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM queue_entries WHERE room_id = $1 AND queue_status = 'in_treatment'`
	if err := r.conn(ctx).GetContext(ctx, &n, query, roomID); err != nil {
		return 0, fmt.Errorf("failed to count room bindings: %w", err)
	}
	return n, nil
}
