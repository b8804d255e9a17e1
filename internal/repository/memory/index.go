package memory

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
)

// idArena is a dense slice of ids with O(1) add and swap-remove.
type idArena struct {
	ids []uuid.UUID
	pos map[uuid.UUID]int
}

func newIDArena() *idArena {
	return &idArena{pos: make(map[uuid.UUID]int)}
}

func (a *idArena) add(id uuid.UUID) {
	if _, ok := a.pos[id]; ok {
		return
	}
	a.pos[id] = len(a.ids)
	a.ids = append(a.ids, id)
}

func (a *idArena) remove(id uuid.UUID) {
	i, ok := a.pos[id]
	if !ok {
		return
	}
	last := len(a.ids) - 1
	a.ids[i] = a.ids[last]
	a.pos[a.ids[i]] = i
	a.ids = a.ids[:last]
	delete(a.pos, id)
}

func (a *idArena) len() int { return len(a.ids) }

type indexKey struct {
	location     string
	availability model.Availability
}

// availabilityIndex buckets dentist ids by location and availability so the
// claim only visits dentists that can actually be taken.
type availabilityIndex struct {
	buckets map[indexKey]*idArena
	placed  map[uuid.UUID]indexKey
}

func newAvailabilityIndex() *availabilityIndex {
	return &availabilityIndex{
		buckets: make(map[indexKey]*idArena),
		placed:  make(map[uuid.UUID]indexKey),
	}
}

func (x *availabilityIndex) put(d *model.Dentist) {
	if prev, ok := x.placed[d.ID]; ok {
		x.buckets[prev].remove(d.ID)
	}
	key := indexKey{location: d.ClinicLocation, availability: d.Availability}
	b, ok := x.buckets[key]
	if !ok {
		b = newIDArena()
		x.buckets[key] = b
	}
	b.add(d.ID)
	x.placed[d.ID] = key
}

func (x *availabilityIndex) ids(location string, availability model.Availability) []uuid.UUID {
	b, ok := x.buckets[indexKey{location: location, availability: availability}]
	if !ok {
		return nil
	}
	out := make([]uuid.UUID, b.len())
	copy(out, b.ids)
	return out
}

func (x *availabilityIndex) rebuild(dentists map[uuid.UUID]*model.Dentist) {
	x.buckets = make(map[indexKey]*idArena)
	x.placed = make(map[uuid.UUID]indexKey)
	for _, d := range dentists {
		x.put(d)
	}
}
