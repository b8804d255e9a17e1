// Package queue owns queue entries: day-scoped numbering at check-in, the
// mirrored queue status and the release of resource bindings.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

type Service struct {
	entries      repository.QueueRepository
	appointments repository.AppointmentRepository
	dentists     repository.DentistRepository
	rooms        repository.RoomRepository
	loc          *time.Location
	now          func() time.Time
}

func NewService(
	entries repository.QueueRepository,
	appointments repository.AppointmentRepository,
	dentists repository.DentistRepository,
	rooms repository.RoomRepository,
	loc *time.Location,
) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		entries:      entries,
		appointments: appointments,
		dentists:     dentists,
		rooms:        rooms,
		loc:          loc,
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Today returns the start of the current clinic day.
func (s *Service) Today() time.Time {
	start, _ := model.DayBounds(s.now(), s.loc)
	return start
}

// ReplayDay is the clinic day a replayed appointment queues on: its scheduled
// day when that has already passed, otherwise today.
func (s *Service) ReplayDay(appt *model.Appointment) time.Time {
	today := s.Today()
	scheduled, _ := model.DayBounds(appt.ScheduledAt, s.loc)
	if scheduled.Before(today) {
		return scheduled
	}
	return today
}

// Enqueue gives a checked-in appointment its entry for day, the start of a
// clinic day. An appointment re-checked-in after an override keeps its entry
// but is renumbered when the day changed. Must run inside a transaction.
func (s *Service) Enqueue(ctx context.Context, appt *model.Appointment, day time.Time) (*model.QueueEntry, error) {
	existing, err := s.entries.GetByAppointment(ctx, appt.ID)
	switch {
	case err == nil:
		if existing.QueueDate.Format(model.DateLayout) != day.Format(model.DateLayout) {
			n, err := s.entries.NextNumber(ctx, appt.ClinicLocation, day)
			if err != nil {
				return nil, err
			}
			if err := s.entries.Renumber(ctx, existing.ID, day, n); err != nil {
				return nil, err
			}
			existing.QueueDate = day
			existing.QueueNumber = n
		}
		if err := s.entries.Mirror(ctx, appt.ID, appt.Status); err != nil {
			return nil, err
		}
		existing.QueueStatus = model.ProjectQueueStatus(appt.Status)
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("look up queue entry: %w", err)
	}

	n, err := s.entries.NextNumber(ctx, appt.ClinicLocation, day)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	entry := &model.QueueEntry{
		ID:             uuid.New(),
		AppointmentID:  appt.ID,
		ClinicLocation: appt.ClinicLocation,
		QueueDate:      day,
		QueueNumber:    n,
		QueueStatus:    model.ProjectQueueStatus(appt.Status),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Mirror projects status onto the appointment's entry, if it has one.
func (s *Service) Mirror(ctx context.Context, appointmentID uuid.UUID, status model.AppointmentStatus) error {
	return s.entries.Mirror(ctx, appointmentID, status)
}

// Release frees whatever the appointment's entry holds: the dentist goes back
// to available and the room is unflagged once nothing else is bound to it.
// Entries without bindings are left alone. Must run inside a transaction.
func (s *Service) Release(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	entry, err := s.entries.GetByAppointment(ctx, appointmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up queue entry: %w", err)
	}
	if !entry.Bound() {
		return entry, nil
	}
	released := entry.Clone()

	if err := s.entries.Release(ctx, entry.ID); err != nil {
		return nil, err
	}
	if entry.DentistID != nil {
		if err := s.dentists.MarkAvailable(ctx, *entry.DentistID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	if entry.RoomID != nil {
		n, err := s.entries.CountRoomBindings(ctx, *entry.RoomID)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if err := s.rooms.SetOccupied(ctx, *entry.RoomID, false); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
		}
	}
	return released, nil
}

// Board lists a location's entries for day with the owning appointment's
// status and display fields. The status shown is always the appointment's.
func (s *Service) Board(ctx context.Context, location string, day time.Time) ([]*model.QueueBoardItem, error) {
	if location == "" {
		return nil, apperrors.Validation("clinic_location is required", nil)
	}
	start, _ := model.DayBounds(day, s.loc)
	entries, err := s.entries.ListByDay(ctx, location, start)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	items := make([]*model.QueueBoardItem, 0, len(entries))
	for _, e := range entries {
		appt, err := s.appointments.Get(ctx, e.AppointmentID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		e.QueueStatus = model.ProjectQueueStatus(appt.Status)
		items = append(items, &model.QueueBoardItem{
			Entry:             e,
			AppointmentStatus: appt.Status,
			PatientName:       appt.PatientName,
			ScheduledAt:       appt.ScheduledAt,
			VisitCode:         appt.VisitCode,
		})
	}
	return items, nil
}

// EntryFor returns the appointment's queue entry.
func (s *Service) EntryFor(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	e, err := s.entries.GetByAppointment(ctx, appointmentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("queue entry", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	e, err := s.entries.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("queue entry", err)
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return e, nil
}
