package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

const dentistColumns = `id, name, clinic_location, specialization, active, availability, schedule, leaves,
	created_at, updated_at, deleted_at`

type dentistRepository struct {
	BaseRepository
}

func NewDentistRepository(db *sqlx.DB) repository.DentistRepository {
	return &dentistRepository{NewBaseRepository(db)}
}

func (r *dentistRepository) Create(ctx context.Context, d *model.Dentist) error {
	query := `
		INSERT INTO dentists (
			id, name, clinic_location, specialization, active, availability, schedule, leaves,
			created_at, updated_at
		) VALUES (
			:id, :name, :clinic_location, :specialization, :active, :availability, :schedule, :leaves,
			:created_at, :updated_at
		)`
	if _, err := r.conn(ctx).NamedExecContext(ctx, query, d); err != nil {
		return fmt.Errorf("failed to create dentist: %w", err)
	}
	return nil
}

func (r *dentistRepository) Get(ctx context.Context, id uuid.UUID) (*model.Dentist, error) {
	var d model.Dentist
	query := `SELECT ` + dentistColumns + ` FROM dentists WHERE id = $1 AND deleted_at IS NULL`
	if err := r.conn(ctx).GetContext(ctx, &d, query, id); err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *dentistRepository) List(ctx context.Context, location string) ([]*model.Dentist, error) {
	dentists := []*model.Dentist{}
	query := `SELECT ` + dentistColumns + ` FROM dentists
		WHERE deleted_at IS NULL AND ($1 = '' OR clinic_location = $1)
		ORDER BY name, id`
	if err := r.conn(ctx).SelectContext(ctx, &dentists, query, location); err != nil {
		return nil, fmt.Errorf("failed to list dentists: %w", err)
	}
	return dentists, nil
}

func (r *dentistRepository) LockAvailable(ctx context.Context, location string) ([]*model.Dentist, error) {
	dentists := []*model.Dentist{}
	query := `SELECT ` + dentistColumns + ` FROM dentists
		WHERE clinic_location = $1
		AND active
		AND availability = 'available'
		AND deleted_at IS NULL
		ORDER BY name, id
		FOR UPDATE SKIP LOCKED`
	if err := r.conn(ctx).SelectContext(ctx, &dentists, query, location); err != nil {
		return nil, fmt.Errorf("failed to lock available dentists: %w", err)
	}
	return dentists, nil
}

func (r *dentistRepository) MarkBusy(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE dentists SET availability = 'busy', updated_at = NOW()
		WHERE id = $1 AND active AND availability = 'available'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark dentist busy: %w", err)
	}
	return affected(res, repository.ErrResourceTaken)
}

func (r *dentistRepository) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).ExecContext(ctx, `
		UPDATE dentists SET availability = 'available', updated_at = NOW()
		WHERE id = $1 AND availability = 'busy'`, id)
	if err != nil {
		return fmt.Errorf("failed to mark dentist available: %w", err)
	}
	return nil
}

func (r *dentistRepository) SetAvailability(ctx context.Context, id uuid.UUID, availability model.Availability) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE dentists SET availability = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`,
		availability, id)
	if err != nil {
		return fmt.Errorf("failed to set dentist availability: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *dentistRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE dentists SET active = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set dentist active: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

const roomColumns = `id, name, clinic_location, active, capacity, occupied, created_at, updated_at, deleted_at`

type roomRepository struct {
	BaseRepository
}

func NewRoomRepository(db *sqlx.DB) repository.RoomRepository {
	return &roomRepository{NewBaseRepository(db)}
}

func (r *roomRepository) Create(ctx context.Context, room *model.Room) error {
	query := `
		INSERT INTO rooms (id, name, clinic_location, active, capacity, occupied, created_at, updated_at)
		VALUES (:id, :name, :clinic_location, :active, :capacity, :occupied, :created_at, :updated_at)`
	if _, err := r.conn(ctx).NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

func (r *roomRepository) Get(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	var room model.Room
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 AND deleted_at IS NULL`
	if err := r.conn(ctx).GetContext(ctx, &room, query, id); err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (r *roomRepository) List(ctx context.Context, location string) ([]*model.Room, error) {
	rooms := []*model.Room{}
	query := `SELECT ` + roomColumns + ` FROM rooms
		WHERE deleted_at IS NULL AND ($1 = '' OR clinic_location = $1)
		ORDER BY name, id`
	if err := r.conn(ctx).SelectContext(ctx, &rooms, query, location); err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	return rooms, nil
}

// LockFree ignores the cached occupied flag and recounts live bindings.
func (r *roomRepository) LockFree(ctx context.Context, location string) ([]*model.Room, error) {
	rooms := []*model.Room{}
	query := `SELECT r.id, r.name, r.clinic_location, r.active, r.capacity, r.occupied,
			r.created_at, r.updated_at, r.deleted_at
		FROM rooms r
		WHERE r.clinic_location = $1
		AND r.active
		AND r.deleted_at IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM queue_entries q
			WHERE q.room_id = r.id AND q.queue_status = 'in_treatment'
		)
		ORDER BY r.name, r.id
		FOR UPDATE OF r SKIP LOCKED`
	if err := r.conn(ctx).SelectContext(ctx, &rooms, query, location); err != nil {
		return nil, fmt.Errorf("failed to lock free rooms: %w", err)
	}
	return rooms, nil
}

func (r *roomRepository) SetOccupied(ctx context.Context, id uuid.UUID, occupied bool) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE rooms SET occupied = $1, updated_at = NOW() WHERE id = $2`, occupied, id)
	if err != nil {
		return fmt.Errorf("failed to set room occupancy: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *roomRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE rooms SET active = $1, updated_at = NOW() WHERE id = $2 AND deleted_at IS NULL`, active, id)
	if err != nil {
		return fmt.Errorf("failed to set room active: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}
