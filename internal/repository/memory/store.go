// Package memory implements the repositories on process memory. A single
// mutex serializes transactions; a failed or panicking transaction restores
// the snapshot taken when it began.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type Store struct {
	mu sync.Mutex

	appointments map[uuid.UUID]*model.Appointment
	queue        map[uuid.UUID]*model.QueueEntry
	dentists     map[uuid.UUID]*model.Dentist
	rooms        map[uuid.UUID]*model.Room
	audit        []*model.AuditLog
	outbox       map[uuid.UUID]*model.OutboxEvent

	index *availabilityIndex
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		appointments: make(map[uuid.UUID]*model.Appointment),
		queue:        make(map[uuid.UUID]*model.QueueEntry),
		dentists:     make(map[uuid.UUID]*model.Dentist),
		rooms:        make(map[uuid.UUID]*model.Room),
		outbox:       make(map[uuid.UUID]*model.OutboxEvent),
		index:        newAvailabilityIndex(),
		now:          time.Now,
	}
}

// SetClock overrides the store's time source.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }
func (s *Store) Queue() repository.QueueRepository              { return &queueRepo{s} }
func (s *Store) Dentists() repository.DentistRepository         { return &dentistRepo{s} }
func (s *Store) Rooms() repository.RoomRepository               { return &roomRepo{s} }
func (s *Store) Audit() repository.AuditRepository              { return &auditRepo{s} }
func (s *Store) Outbox() repository.OutboxRepository            { return &outboxRepo{s} }

type txKey struct{}

type txState struct {
	store  *Store
	active atomic.Bool
}

// WithinTx implements repository.Transactor. Nested calls join the outer
// transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	snap := s.snapshot()
	state := &txState{store: s}
	state.active.Store(true)
	txCtx := context.WithValue(ctx, txKey{}, state)

	defer func() {
		state.active.Store(false)
		if p := recover(); p != nil {
			s.restore(snap)
			s.mu.Unlock()
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
		s.mu.Unlock()
	}()

	return fn(txCtx)
}

func (s *Store) inTx(ctx context.Context) bool {
	state, ok := ctx.Value(txKey{}).(*txState)
	return ok && state.store == s && state.active.Load()
}

// guard locks the store unless ctx already holds it through a transaction.
func (s *Store) guard(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	appointments map[uuid.UUID]*model.Appointment
	queue        map[uuid.UUID]*model.QueueEntry
	dentists     map[uuid.UUID]*model.Dentist
	rooms        map[uuid.UUID]*model.Room
	auditLen     int
	outbox       map[uuid.UUID]*model.OutboxEvent
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		appointments: make(map[uuid.UUID]*model.Appointment, len(s.appointments)),
		queue:        make(map[uuid.UUID]*model.QueueEntry, len(s.queue)),
		dentists:     make(map[uuid.UUID]*model.Dentist, len(s.dentists)),
		rooms:        make(map[uuid.UUID]*model.Room, len(s.rooms)),
		auditLen:     len(s.audit),
		outbox:       make(map[uuid.UUID]*model.OutboxEvent, len(s.outbox)),
	}
	for k, v := range s.appointments {
		snap.appointments[k] = v.Clone()
	}
	for k, v := range s.queue {
		snap.queue[k] = v.Clone()
	}
	for k, v := range s.dentists {
		snap.dentists[k] = v.Clone()
	}
	for k, v := range s.rooms {
		snap.rooms[k] = v.Clone()
	}
	for k, v := range s.outbox {
		e := *v
		snap.outbox[k] = &e
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.appointments = snap.appointments
	s.queue = snap.queue
	s.dentists = snap.dentists
	s.rooms = snap.rooms
	s.audit = s.audit[:snap.auditLen]
	s.outbox = snap.outbox
	s.index.rebuild(s.dentists)
}
