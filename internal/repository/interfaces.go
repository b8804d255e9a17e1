package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a compare-and-swap status write finds
	// a different status than expected.
	ErrStatusConflict = errors.New("status changed concurrently")
	// ErrResourceTaken is returned when a dentist was claimed by someone else
	// between lock and write.
	ErrResourceTaken   = errors.New("resource already taken")
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Transactor runs fn inside one transaction. Repositories called with the
// ctx passed to fn join that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AppointmentRepository interface {
	Create(ctx context.Context, appt *model.Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// GetForUpdate row-locks the appointment inside the current transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	GetByVisitCode(ctx context.Context, code string) (*model.Appointment, error)
	List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error)
	// UpdateStatus writes status, stamps, dentist and cancel reason only if the
	// stored status still equals from.
	UpdateStatus(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error
	CountActive(ctx context.Context, location string, dayStart, dayEnd time.Time) (int, error)
	// NextCandidate is the earliest-scheduled checked_in or waiting appointment
	// in the window.
	NextCandidate(ctx context.Context, location string, dayStart, dayEnd time.Time) (*model.Appointment, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Restore(ctx context.Context, id uuid.UUID) error
}

type QueueRepository interface {
	// NextNumber reserves the next queue number for a location and day. It must
	// run inside a transaction.
	NextNumber(ctx context.Context, location string, day time.Time) (int, error)
	Create(ctx context.Context, entry *model.QueueEntry) error
	Renumber(ctx context.Context, id uuid.UUID, day time.Time, number int) error
	Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error)
	Bind(ctx context.Context, id uuid.UUID, dentistID, roomID uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID) error
	// Mirror sets the entry's queue status to the projection of status.
	Mirror(ctx context.Context, appointmentID uuid.UUID, status model.AppointmentStatus) error
	ListByDay(ctx context.Context, location string, day time.Time) ([]*model.QueueEntry, error)
	CountRoomBindings(ctx context.Context, roomID uuid.UUID) (int, error)
}

type DentistRepository interface {
	Create(ctx context.Context, d *model.Dentist) error
	Get(ctx context.Context, id uuid.UUID) (*model.Dentist, error)
	List(ctx context.Context, location string) ([]*model.Dentist, error)
	// LockAvailable returns active, available dentists at location, skipping
	// rows locked by other transactions.
	LockAvailable(ctx context.Context, location string) ([]*model.Dentist, error)
	// MarkBusy flips available -> busy, ErrResourceTaken otherwise.
	MarkBusy(ctx context.Context, id uuid.UUID) error
	// MarkAvailable flips busy -> available; it is a no-op for other states.
	MarkAvailable(ctx context.Context, id uuid.UUID) error
	SetAvailability(ctx context.Context, id uuid.UUID, availability model.Availability) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type RoomRepository interface {
	Create(ctx context.Context, r *model.Room) error
	Get(ctx context.Context, id uuid.UUID) (*model.Room, error)
	List(ctx context.Context, location string) ([]*model.Room, error)
	// LockFree returns active rooms at location with no live in-treatment
	// binding, skipping rows locked by other transactions.
	LockFree(ctx context.Context, location string) ([]*model.Room, error)
	SetOccupied(ctx context.Context, id uuid.UUID, occupied bool) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

type AuditRepository interface {
	Create(ctx context.Context, log *model.AuditLog) error
	List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error)
	Cleanup(ctx context.Context, before time.Time) (int64, error)
}

type OutboxRepository interface {
	Create(ctx context.Context, event *model.OutboxEvent) error
	GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// SettingsStore holds the per-location pause flag. Reads are never cached.
type SettingsStore interface {
	Get(ctx context.Context, location string) (*model.ClinicQueueSettings, error)
	SetPaused(ctx context.Context, location string, paused bool, actor string) (*model.ClinicQueueSettings, error)
}

// Locker guards a short critical section per key. It never waits: a held
// lock yields ErrLockNotAcquired.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
