package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type appointmentRepo struct {
	s *Store
}

func (r *appointmentRepo) Create(ctx context.Context, appt *model.Appointment) error {
	defer r.s.guard(ctx)()

	if _, ok := r.s.appointments[appt.ID]; ok {
		return fmt.Errorf("appointment %s already exists", appt.ID)
	}
	for _, a := range r.s.appointments {
		if a.VisitCode == appt.VisitCode {
			return fmt.Errorf("visit code %s already in use", appt.VisitCode)
		}
	}
	r.s.appointments[appt.ID] = appt.Clone()
	return nil
}

func (r *appointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	defer r.s.guard(ctx)()
	return r.get(id)
}

// GetForUpdate needs no extra locking: the store mutex is the row lock.
func (r *appointmentRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return r.Get(ctx, id)
}

func (r *appointmentRepo) get(id uuid.UUID) (*model.Appointment, error) {
	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (r *appointmentRepo) GetByVisitCode(ctx context.Context, code string) (*model.Appointment, error) {
	defer r.s.guard(ctx)()
	for _, a := range r.s.appointments {
		if a.VisitCode == code && a.DeletedAt == nil {
			return a.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *appointmentRepo) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	defer r.s.guard(ctx)()

	var out []*model.Appointment
	for _, a := range r.s.appointments {
		if a.DeletedAt != nil && !filter.IncludeDeleted {
			continue
		}
		if filter.ClinicLocation != "" && a.ClinicLocation != filter.ClinicLocation {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.From != nil && a.ScheduledAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !a.ScheduledAt.Before(*filter.To) {
			continue
		}
		out = append(out, a.Clone())
	}
	sortBySchedule(out)

	offset := filter.Offset()
	if offset >= len(out) {
		return []*model.Appointment{}, nil
	}
	end := offset + filter.Limit()
	if end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *appointmentRepo) UpdateStatus(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	defer r.s.guard(ctx)()

	stored, ok := r.s.appointments[appt.ID]
	if !ok || stored.DeletedAt != nil {
		return repository.ErrNotFound
	}
	if stored.Status != from {
		return repository.ErrStatusConflict
	}

	next := appt.Clone()
	stored.Status = next.Status
	stored.CheckedInAt = next.CheckedInAt
	stored.CalledAt = next.CalledAt
	stored.TreatmentStartedAt = next.TreatmentStartedAt
	stored.TreatmentEndedAt = next.TreatmentEndedAt
	stored.DentistID = next.DentistID
	stored.CancelReason = next.CancelReason
	stored.UpdatedAt = r.s.now()
	appt.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *appointmentRepo) CountActive(ctx context.Context, location string, dayStart, dayEnd time.Time) (int, error) {
	defer r.s.guard(ctx)()

	n := 0
	for _, a := range r.s.appointments {
		if a.DeletedAt == nil && a.ClinicLocation == location && a.Status.Active() && inWindow(a.ScheduledAt, dayStart, dayEnd) {
			n++
		}
	}
	return n, nil
}

func (r *appointmentRepo) NextCandidate(ctx context.Context, location string, dayStart, dayEnd time.Time) (*model.Appointment, error) {
	defer r.s.guard(ctx)()

	var candidates []*model.Appointment
	for _, a := range r.s.appointments {
		if a.DeletedAt != nil || a.ClinicLocation != location || !inWindow(a.ScheduledAt, dayStart, dayEnd) {
			continue
		}
		if a.Status == model.AppointmentStatusCheckedIn || a.Status == model.AppointmentStatusWaiting {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return nil, repository.ErrNotFound
	}
	sortBySchedule(candidates)
	return candidates[0].Clone(), nil
}

func (r *appointmentRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	defer r.s.guard(ctx)()

	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := r.s.now()
	a.DeletedAt = &now
	return nil
}

func (r *appointmentRepo) Restore(ctx context.Context, id uuid.UUID) error {
	defer r.s.guard(ctx)()

	a, ok := r.s.appointments[id]
	if !ok || a.DeletedAt == nil {
		return repository.ErrNotFound
	}
	a.DeletedAt = nil
	a.UpdatedAt = r.s.now()
	return nil
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

func sortBySchedule(list []*model.Appointment) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].ScheduledAt.Equal(list[j].ScheduledAt) {
			return list[i].ScheduledAt.Before(list[j].ScheduledAt)
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
