package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

const appointmentColumns = `id, patient_name, patient_phone, patient_email, service_id, dentist_id,
	clinic_location, scheduled_at, status, checked_in_at, called_at, treatment_started_at,
	treatment_ended_at, visit_code, walk_in, notes, cancel_reason, created_at, updated_at, deleted_at`

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func (r *appointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_name, patient_phone, patient_email, service_id, dentist_id,
			clinic_location, scheduled_at, status, visit_code, walk_in, notes,
			created_at, updated_at
		) VALUES (
			:id, :patient_name, :patient_phone, :patient_email, :service_id, :dentist_id,
			:clinic_location, :scheduled_at, :status, :visit_code, :walk_in, :notes,
			:created_at, :updated_at
		)`
	if _, err := r.conn(ctx).NamedExecContext(ctx, query, appt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL`
	if err := r.conn(ctx).GetContext(ctx, &appt, query, id); err != nil {
		return nil, notFound(err)
	}
	return &appt, nil
}

func (r *appointmentRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`
	if err := r.conn(ctx).GetContext(ctx, &appt, query, id); err != nil {
		return nil, notFound(err)
	}
	return &appt, nil
}

func (r *appointmentRepository) GetByVisitCode(ctx context.Context, code string) (*model.Appointment, error) {
	var appt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE visit_code = $1 AND deleted_at IS NULL`
	if err := r.conn(ctx).GetContext(ctx, &appt, query, code); err != nil {
		return nil, notFound(err)
	}
	return &appt, nil
}

func (r *appointmentRepository) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}
	if filter.ClinicLocation != "" {
		add("clinic_location = $%d", filter.ClinicLocation)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.From != nil {
		add("scheduled_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("scheduled_at < $%d", *filter.To)
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit(), filter.Offset())
	query += fmt.Sprintf(" ORDER BY scheduled_at, created_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	appts := []*model.Appointment{}
	if err := r.conn(ctx).SelectContext(ctx, &appts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appts, nil
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	appt.UpdatedAt = time.Now()
	query := `
		UPDATE appointments
		SET status = $1,
			checked_in_at = $2,
			called_at = $3,
			treatment_started_at = $4,
			treatment_ended_at = $5,
			dentist_id = $6,
			cancel_reason = $7,
			updated_at = $8
		WHERE id = $9 AND status = $10 AND deleted_at IS NULL`
	res, err := r.conn(ctx).ExecContext(ctx, query,
		appt.Status,
		appt.CheckedInAt,
		appt.CalledAt,
		appt.TreatmentStartedAt,
		appt.TreatmentEndedAt,
		appt.DentistID,
		appt.CancelReason,
		appt.UpdatedAt,
		appt.ID,
		from,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return affected(res, repository.ErrStatusConflict)
}

func (r *appointmentRepository) CountActive(ctx context.Context, location string, dayStart, dayEnd time.Time) (int, error) {
	var n int
	query := `
		SELECT COUNT(*) FROM appointments
		WHERE clinic_location = $1
		AND status IN ('called', 'in_treatment')
		AND scheduled_at >= $2 AND scheduled_at < $3
		AND deleted_at IS NULL`
	if err := r.conn(ctx).GetContext(ctx, &n, query, location, dayStart, dayEnd); err != nil {
		return 0, fmt.Errorf("failed to count active appointments: %w", err)
	}
	return n, nil
}

func (r *appointmentRepository) NextCandidate(ctx context.Context, location string, dayStart, dayEnd time.Time) (*model.Appointment, error) {
	var appt model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE clinic_location = $1
		AND status IN ('checked_in', 'waiting')
		AND scheduled_at >= $2 AND scheduled_at < $3
		AND deleted_at IS NULL
		ORDER BY scheduled_at, created_at
		LIMIT 1`
	if err := r.conn(ctx).GetContext(ctx, &appt, query, location, dayStart, dayEnd); err != nil {
		return nil, notFound(err)
	}
	return &appt, nil
}

func (r *appointmentRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE appointments SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}

func (r *appointmentRepository) Restore(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn(ctx).ExecContext(ctx,
		`UPDATE appointments SET deleted_at = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NOT NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to restore appointment: %w", err)
	}
	return affected(res, repository.ErrNotFound)
}
