// Package appointment is the engine façade: every appointment status change
// enters here, is decided by the lifecycle package and executed step by step
// inside a transaction.
package appointment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service/assignment"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	"github.com/jwalitptl/clinic-queue/internal/service/event"
	"github.com/jwalitptl/clinic-queue/internal/service/notification"
	"github.com/jwalitptl/clinic-queue/internal/service/orchestrator"
	"github.com/jwalitptl/clinic-queue/internal/service/queue"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Advancer runs auto-advance for a location.
type Advancer interface {
	Advance(ctx context.Context, location string, trigger orchestrator.Trigger) orchestrator.Result
}

// Claimer performs the resource claim that moves a patient into treatment.
type Claimer interface {
	Claim(ctx context.Context, entryID uuid.UUID, location, actor string) (*assignment.Claim, error)
}

// Roster drops cached dentist listings once resources change hands.
type Roster interface {
	Invalidate(location string)
}

type Deps struct {
	Tx           repository.Transactor
	Appointments repository.AppointmentRepository
	Settings     repository.SettingsStore
	Queue        *queue.Service
	Claimer      Claimer
	Advancer     Advancer
	Roster       Roster
	Auditor      *audit.Service
	Events       *event.EventService
	Notifier     notification.Notifier
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
	Location     *time.Location
}

type Service struct {
	Deps
	now func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Service{Deps: deps, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Result describes what a lifecycle operation did.
type Result struct {
	Appointment *model.Appointment   `json:"appointment"`
	QueueEntry  *model.QueueEntry    `json:"queue_entry,omitempty"`
	Steps       []StepRecord         `json:"steps,omitempty"`
	Noop        bool                 `json:"noop,omitempty"`
	Claim       *assignment.Claim    `json:"claim,omitempty"`
	Advance     *orchestrator.Result `json:"advance,omitempty"`
}

type StepRecord struct {
	From model.AppointmentStatus `json:"from"`
	To   model.AppointmentStatus `json:"to"`
}

func (s *Service) Book(ctx context.Context, req *model.CreateAppointmentRequest, actor string) (*model.Appointment, error) {
	scheduled, err := time.ParseInLocation(model.DateLayout+" "+model.TimeLayout, req.Date+" "+req.Time, s.Location)
	if err != nil {
		return nil, s.reject(apperrors.Validation("invalid date or time", err))
	}
	appt, err := s.newAppointment(req.PatientName, req.PatientPhone, req.PatientEmail, req.ServiceID, req.ClinicLocation, req.Notes, scheduled)
	if err != nil {
		return nil, s.reject(err)
	}
	if req.DentistID != nil {
		id, err := uuid.Parse(*req.DentistID)
		if err != nil {
			return nil, s.reject(apperrors.Validation("invalid dentist_id", err))
		}
		appt.DentistID = &id
	}
	if err := s.create(ctx, appt, actor); err != nil {
		return nil, err
	}
	return appt, nil
}

// CreateWalkIn books an appointment for right now and checks it in with two
// explicit transitions. An idle queue then calls the patient.
func (s *Service) CreateWalkIn(ctx context.Context, req *model.WalkInRequest, actor string) (*Result, error) {
	appt, err := s.newAppointment(req.PatientName, req.PatientPhone, req.PatientEmail, req.ServiceID, req.ClinicLocation, req.Notes, s.now())
	if err != nil {
		return nil, s.reject(err)
	}
	appt.WalkIn = true
	if err := s.create(ctx, appt, actor); err != nil {
		return nil, err
	}
	return s.CheckIn(ctx, appt.ID, actor)
}

func (s *Service) newAppointment(name, phone string, email, serviceID *string, location, notes string, scheduled time.Time) (*model.Appointment, error) {
	now := s.now().UTC()
	appt := &model.Appointment{
		Base:           model.Base{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		PatientName:    strings.TrimSpace(name),
		PatientPhone:   strings.TrimSpace(phone),
		PatientEmail:   email,
		ClinicLocation: location,
		ScheduledAt:    scheduled.UTC(),
		Status:         model.AppointmentStatusBooked,
		VisitCode:      newVisitCode(),
		Notes:          notes,
	}
	if serviceID != nil {
		id, err := uuid.Parse(*serviceID)
		if err != nil {
			return nil, apperrors.Validation("invalid service_id", err)
		}
		appt.ServiceID = &id
	}
	return appt, nil
}

func (s *Service) create(ctx context.Context, appt *model.Appointment, actor string) error {
	if err := s.Appointments.Create(ctx, appt); err != nil {
		return s.reject(apperrors.NewInternal(err))
	}
	s.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionCreate,
		EntityType: model.AuditEntityAppointment,
		EntityID:   appt.ID,
		Location:   appt.ClinicLocation,
		After:      appt,
	})
	return nil
}

const visitCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// newVisitCode returns an 8 character code without look-alike characters.
// When crypto/rand fails the bytes come from a random UUID instead.
func newVisitCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		id := uuid.New()
		copy(b, id[:])
	}
	return encodeVisitCode(b)
}

func encodeVisitCode(b []byte) string {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = visitCodeAlphabet[int(c)%len(visitCodeAlphabet)]
	}
	return string(out)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appt, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return appt, nil
}

// GetByVisitCode serves public tracking. It reads the appointment status only.
func (s *Service) GetByVisitCode(ctx context.Context, code string) (*model.Appointment, error) {
	appt, err := s.Appointments.GetByVisitCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, notFound(err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, filter model.AppointmentFilter) ([]*model.Appointment, error) {
	list, err := s.Appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return list, nil
}

// SoftDelete tombstones an appointment. Called or in-treatment appointments
// must be cancelled first so their resources are released.
func (s *Service) SoftDelete(ctx context.Context, id uuid.UUID, actor string) error {
	appt, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return notFound(err)
	}
	if appt.Status.Active() {
		return s.reject(apperrors.Validation("cancel the appointment before deleting it", nil))
	}
	if err := s.Appointments.SoftDelete(ctx, id); err != nil {
		return notFound(err)
	}
	s.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionDelete,
		EntityType: model.AuditEntityAppointment,
		EntityID:   id,
		Location:   appt.ClinicLocation,
		Before:     appt,
	})
	return nil
}

func (s *Service) Restore(ctx context.Context, id uuid.UUID, actor string) (*model.Appointment, error) {
	if err := s.Appointments.Restore(ctx, id); err != nil {
		return nil, notFound(err)
	}
	appt, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	s.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionRestore,
		EntityType: model.AuditEntityAppointment,
		EntityID:   id,
		Location:   appt.ClinicLocation,
		After:      appt,
	})
	return appt, nil
}

// reject counts a rejected operation by kind and returns err unchanged.
func (s *Service) reject(err error) error {
	if err != nil {
		s.Metrics.Rejections.WithLabelValues(string(apperrors.KindOf(err))).Inc()
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("appointment", err)
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.NewInternal(err)
}

func casErr(err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.ConcurrencyConflict("appointment changed concurrently", err)
	}
	return notFound(err)
}

// ReplayError reports where a retroactive completion stopped.
type ReplayError struct {
	Reached model.AppointmentStatus
	Failed  StepRecord
	Err     error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay stopped at %s (%s -> %s): %v", e.Reached, e.Failed.From, e.Failed.To, e.Err)
}

func (e *ReplayError) Unwrap() error {
	return e.Err
}
