package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type dentistRepo struct {
	s *Store
}

func (r *dentistRepo) Create(ctx context.Context, d *model.Dentist) error {
	defer r.s.guard(ctx)()

	if _, ok := r.s.dentists[d.ID]; ok {
		return fmt.Errorf("dentist %s already exists", d.ID)
	}
	c := d.Clone()
	r.s.dentists[d.ID] = c
	r.s.index.put(c)
	return nil
}

func (r *dentistRepo) Get(ctx context.Context, id uuid.UUID) (*model.Dentist, error) {
	defer r.s.guard(ctx)()

	d, ok := r.s.dentists[id]
	if !ok || d.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return d.Clone(), nil
}

func (r *dentistRepo) List(ctx context.Context, location string) ([]*model.Dentist, error) {
	defer r.s.guard(ctx)()

	var out []*model.Dentist
	for _, d := range r.s.dentists {
		if d.DeletedAt == nil && (location == "" || d.ClinicLocation == location) {
			out = append(out, d.Clone())
		}
	}
	sortDentists(out)
	return out, nil
}

func (r *dentistRepo) LockAvailable(ctx context.Context, location string) ([]*model.Dentist, error) {
	defer r.s.guard(ctx)()

	var out []*model.Dentist
	for _, id := range r.s.index.ids(location, model.AvailabilityAvailable) {
		d := r.s.dentists[id]
		if d == nil || !d.Active || d.DeletedAt != nil {
			continue
		}
		out = append(out, d.Clone())
	}
	sortDentists(out)
	return out, nil
}

func (r *dentistRepo) MarkBusy(ctx context.Context, id uuid.UUID) error {
	defer r.s.guard(ctx)()

	d, ok := r.s.dentists[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !d.Active || d.Availability != model.AvailabilityAvailable {
		return repository.ErrResourceTaken
	}
	r.setAvailability(d, model.AvailabilityBusy)
	return nil
}

func (r *dentistRepo) MarkAvailable(ctx context.Context, id uuid.UUID) error {
	defer r.s.guard(ctx)()

	d, ok := r.s.dentists[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.Availability == model.AvailabilityBusy {
		r.setAvailability(d, model.AvailabilityAvailable)
	}
	return nil
}

func (r *dentistRepo) SetAvailability(ctx context.Context, id uuid.UUID, availability model.Availability) error {
	defer r.s.guard(ctx)()

	d, ok := r.s.dentists[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.setAvailability(d, availability)
	return nil
}

func (r *dentistRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	defer r.s.guard(ctx)()

	d, ok := r.s.dentists[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Active = active
	d.UpdatedAt = r.s.now()
	return nil
}

func (r *dentistRepo) setAvailability(d *model.Dentist, a model.Availability) {
	d.Availability = a
	d.UpdatedAt = r.s.now()
	r.s.index.put(d)
}

func sortDentists(list []*model.Dentist) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}

type roomRepo struct {
	s *Store
}

func (r *roomRepo) Create(ctx context.Context, room *model.Room) error {
	defer r.s.guard(ctx)()

	if _, ok := r.s.rooms[room.ID]; ok {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	r.s.rooms[room.ID] = room.Clone()
	return nil
}

func (r *roomRepo) Get(ctx context.Context, id uuid.UUID) (*model.Room, error) {
	defer r.s.guard(ctx)()

	room, ok := r.s.rooms[id]
	if !ok || room.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return room.Clone(), nil
}

func (r *roomRepo) List(ctx context.Context, location string) ([]*model.Room, error) {
	defer r.s.guard(ctx)()

	var out []*model.Room
	for _, room := range r.s.rooms {
		if room.DeletedAt == nil && (location == "" || room.ClinicLocation == location) {
			out = append(out, room.Clone())
		}
	}
	sortRooms(out)
	return out, nil
}

func (r *roomRepo) LockFree(ctx context.Context, location string) ([]*model.Room, error) {
	defer r.s.guard(ctx)()

	var out []*model.Room
	for _, room := range r.s.rooms {
		if room.DeletedAt != nil || !room.Active || room.ClinicLocation != location {
			continue
		}
		if r.s.roomBindings(room.ID) > 0 {
			continue
		}
		out = append(out, room.Clone())
	}
	sortRooms(out)
	return out, nil
}

func (r *roomRepo) SetOccupied(ctx context.Context, id uuid.UUID, occupied bool) error {
	defer r.s.guard(ctx)()

	room, ok := r.s.rooms[id]
	if !ok {
		return repository.ErrNotFound
	}
	room.Occupied = occupied
	room.UpdatedAt = r.s.now()
	return nil
}

func (r *roomRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	defer r.s.guard(ctx)()

	room, ok := r.s.rooms[id]
	if !ok {
		return repository.ErrNotFound
	}
	room.Active = active
	room.UpdatedAt = r.s.now()
	return nil
}

func sortRooms(list []*model.Room) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
