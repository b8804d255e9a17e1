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

type queueRepo struct {
	s *Store
}

func (r *queueRepo) NextNumber(ctx context.Context, location string, day time.Time) (int, error) {
	defer r.s.guard(ctx)()

	max := 0
	for _, e := range r.s.queue {
		if e.ClinicLocation == location && sameDay(e.QueueDate, day) && e.QueueNumber > max {
			max = e.QueueNumber
		}
	}
	return max + 1, nil
}

func (r *queueRepo) Create(ctx context.Context, entry *model.QueueEntry) error {
	defer r.s.guard(ctx)()

	for _, e := range r.s.queue {
		if e.AppointmentID == entry.AppointmentID {
			return fmt.Errorf("appointment %s already has a queue entry", entry.AppointmentID)
		}
	}
	r.s.queue[entry.ID] = entry.Clone()
	return nil
}

func (r *queueRepo) Renumber(ctx context.Context, id uuid.UUID, day time.Time, number int) error {
	defer r.s.guard(ctx)()

	e, ok := r.s.queue[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.QueueDate = day
	e.QueueNumber = number
	e.UpdatedAt = r.s.now()
	return nil
}

func (r *queueRepo) Get(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	defer r.s.guard(ctx)()

	e, ok := r.s.queue[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return e.Clone(), nil
}

func (r *queueRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*model.QueueEntry, error) {
	return r.Get(ctx, id)
}

func (r *queueRepo) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.QueueEntry, error) {
	defer r.s.guard(ctx)()

	for _, e := range r.s.queue {
		if e.AppointmentID == appointmentID {
			return e.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *queueRepo) Bind(ctx context.Context, id uuid.UUID, dentistID, roomID uuid.UUID) error {
	defer r.s.guard(ctx)()

	e, ok := r.s.queue[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.DentistID = &dentistID
	e.RoomID = &roomID
	e.UpdatedAt = r.s.now()
	return nil
}

func (r *queueRepo) Release(ctx context.Context, id uuid.UUID) error {
	defer r.s.guard(ctx)()

	e, ok := r.s.queue[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.DentistID = nil
	e.RoomID = nil
	e.UpdatedAt = r.s.now()
	return nil
}

func (r *queueRepo) Mirror(ctx context.Context, appointmentID uuid.UUID, status model.AppointmentStatus) error {
	defer r.s.guard(ctx)()

	for _, e := range r.s.queue {
		if e.AppointmentID == appointmentID {
			e.QueueStatus = model.ProjectQueueStatus(status)
			e.UpdatedAt = r.s.now()
			return nil
		}
	}
	return nil
}

func (r *queueRepo) ListByDay(ctx context.Context, location string, day time.Time) ([]*model.QueueEntry, error) {
	defer r.s.guard(ctx)()

	var out []*model.QueueEntry
	for _, e := range r.s.queue {
		if e.ClinicLocation == location && sameDay(e.QueueDate, day) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueNumber < out[j].QueueNumber })
	return out, nil
}

func (r *queueRepo) CountRoomBindings(ctx context.Context, roomID uuid.UUID) (int, error) {
	defer r.s.guard(ctx)()
	return r.s.roomBindings(roomID), nil
}

// roomBindings recounts live in-treatment entries bound to roomID. Caller
// holds the lock.
func (s *Store) roomBindings(roomID uuid.UUID) int {
	n := 0
	for _, e := range s.queue {
		if e.RoomID != nil && *e.RoomID == roomID && e.QueueStatus == model.QueueStatusInTreatment {
			n++
		}
	}
	return n
}

func sameDay(a, b time.Time) bool {
	return a.Format(model.DateLayout) == b.Format(model.DateLayout)
}
