// Package resource manages the dentist and room registry and ranks dentist
// candidates for a claim.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

type Config struct {
	Location *time.Location
	// RosterTTL bounds how stale a cached dentist roster may be.
	RosterTTL time.Duration
}

type Service struct {
	dentists repository.DentistRepository
	rooms    repository.RoomRepository
	queue    repository.QueueRepository
	auditor  *audit.Service
	roster   *cache.Cache
	loc      *time.Location
	logger   *logger.Logger
	now      func() time.Time
}

func NewService(
	dentists repository.DentistRepository,
	rooms repository.RoomRepository,
	queue repository.QueueRepository,
	auditor *audit.Service,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RosterTTL <= 0 {
		cfg.RosterTTL = time.Minute
	}
	return &Service{
		dentists: dentists,
		rooms:    rooms,
		queue:    queue,
		auditor:  auditor,
		roster:   cache.New(cfg.RosterTTL, 2*cfg.RosterTTL),
		loc:      cfg.Location,
		logger:   log,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) CreateDentist(ctx context.Context, req *model.CreateDentistRequest, actor string) (*model.Dentist, error) {
	if err := validateSchedule(req.Schedule, req.Leaves); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	d := &model.Dentist{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:           req.Name,
		ClinicLocation: req.ClinicLocation,
		Specialization: req.Specialization,
		Active:         true,
		Availability:   model.AvailabilityAvailable,
		Schedule:       req.Schedule,
		Leaves:         req.Leaves,
	}
	if err := s.dentists.Create(ctx, d); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	s.Invalidate(d.ClinicLocation)
	s.auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityDentist,
		EntityID:   d.ID,
		Location:   d.ClinicLocation,
		After:      d,
	})
	return d, nil
}

func (s *Service) GetDentist(ctx context.Context, id uuid.UUID) (*model.Dentist, error) {
	d, err := s.dentists.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound("dentist", err)
	}
	return d, nil
}

// ListDentists serves the roster for a location from cache when fresh.
func (s *Service) ListDentists(ctx context.Context, location string) ([]*model.Dentist, error) {
	key := rosterKey(location)
	if cached, ok := s.roster.Get(key); ok {
		return cached.([]*model.Dentist), nil
	}
	list, err := s.dentists.List(ctx, location)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	s.roster.SetDefault(key, list)
	return list, nil
}

// Invalidate drops the cached roster for location and the all-locations view.
func (s *Service) Invalidate(location string) {
	s.roster.Delete(rosterKey(location))
	s.roster.Delete(rosterKey(""))
}

func rosterKey(location string) string {
	return "roster:" + location
}

// SetDentistAvailability changes a dentist's manual availability. Busy is
// owned by claims and cannot be set or cleared here.
func (s *Service) SetDentistAvailability(ctx context.Context, id uuid.UUID, availability model.Availability, actor string) (*model.Dentist, error) {
	if !availability.Valid() || availability == model.AvailabilityBusy {
		return nil, apperrors.Validation(fmt.Sprintf("availability %q cannot be set manually", availability), nil)
	}
	before, err := s.dentists.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound("dentist", err)
	}
	if before.Availability == model.AvailabilityBusy {
		return nil, apperrors.ConcurrencyConflict("dentist is in treatment", nil)
	}
	if err := s.dentists.SetAvailability(ctx, id, availability); err != nil {
		return nil, mapNotFound("dentist", err)
	}
	after := before.Clone()
	after.Availability = availability
	s.Invalidate(before.ClinicLocation)
	s.auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityDentist,
		EntityID:   id,
		Location:   before.ClinicLocation,
		Before:     map[string]interface{}{"availability": before.Availability},
		After:      map[string]interface{}{"availability": availability},
	})
	return after, nil
}

func (s *Service) SetDentistActive(ctx context.Context, id uuid.UUID, active bool, actor string) (*model.Dentist, error) {
	before, err := s.dentists.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound("dentist", err)
	}
	if !active && before.Availability == model.AvailabilityBusy {
		return nil, apperrors.ConcurrencyConflict("dentist is in treatment", nil)
	}
	if err := s.dentists.SetActive(ctx, id, active); err != nil {
		return nil, mapNotFound("dentist", err)
	}
	after := before.Clone()
	after.Active = active
	s.Invalidate(before.ClinicLocation)
	s.auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityDentist,
		EntityID:   id,
		Location:   before.ClinicLocation,
		Before:     map[string]interface{}{"active": before.Active},
		After:      map[string]interface{}{"active": active},
	})
	return after, nil
}

func (s *Service) CreateRoom(ctx context.Context, req *model.CreateRoomRequest, actor string) (*model.Room, error) {
	capacity := req.Capacity
	if capacity == 0 {
		capacity = 1
	}
	now := s.now().UTC()
	r := &model.Room{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		Name:           req.Name,
		ClinicLocation: req.ClinicLocation,
		Active:         true,
		Capacity:       capacity,
	}
	if err := s.rooms.Create(ctx, r); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	s.auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityRoom,
		EntityID:   r.ID,
		Location:   r.ClinicLocation,
		After:      r,
	})
	return r, nil
}

func (s *Service) ListRooms(ctx context.Context, location string) ([]*model.Room, error) {
	list, err := s.rooms.List(ctx, location)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return list, nil
}

func (s *Service) SetRoomActive(ctx context.Context, id uuid.UUID, active bool, actor string) (*model.Room, error) {
	before, err := s.rooms.Get(ctx, id)
	if err != nil {
		return nil, mapNotFound("room", err)
	}
	if !active {
		n, err := s.queue.CountRoomBindings(ctx, id)
		if err != nil {
			return nil, apperrors.NewInternal(err)
		}
		if n > 0 {
			return nil, apperrors.ConcurrencyConflict("room is in use", nil)
		}
	}
	if err := s.rooms.SetActive(ctx, id, active); err != nil {
		return nil, mapNotFound("room", err)
	}
	after := before.Clone()
	after.Active = active
	s.auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionUpdate,
		EntityType: model.AuditEntityRoom,
		EntityID:   id,
		Location:   before.ClinicLocation,
		Before:     map[string]interface{}{"active": before.Active},
		After:      map[string]interface{}{"active": active},
	})
	return after, nil
}

// Rank orders dentist candidates for a claim at time at: on shift and not on
// leave first, then dentists without a schedule, then everyone else. Ties
// keep the input order.
func (s *Service) Rank(candidates []*model.Dentist, at time.Time) []*model.Dentist {
	return Rank(candidates, at.In(s.loc))
}

func Rank(candidates []*model.Dentist, at time.Time) []*model.Dentist {
	ranked := append([]*model.Dentist(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return tier(ranked[i], at) < tier(ranked[j], at)
	})
	return ranked
}

func tier(d *model.Dentist, at time.Time) int {
	if d.Leaves.Includes(at) {
		return 2
	}
	if len(d.Schedule) == 0 {
		return 1
	}
	if d.Schedule.Covers(at) {
		return 0
	}
	return 2
}

func validateSchedule(schedule model.WeeklySchedule, leaves model.LeavePeriods) error {
	for _, w := range schedule {
		if w.Start >= w.End {
			return apperrors.Validation(fmt.Sprintf("shift on %s must end after it starts", w.Weekday), nil)
		}
	}
	for _, l := range leaves {
		if l.From > l.To {
			return apperrors.Validation("leave must end on or after its start", nil)
		}
	}
	return nil
}

func mapNotFound(resource string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(resource, err)
	}
	return apperrors.NewInternal(err)
}
