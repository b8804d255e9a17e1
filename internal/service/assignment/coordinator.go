// Package assignment binds a waiting patient to one dentist and one room in a
// single transaction.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	"github.com/jwalitptl/clinic-queue/internal/service/event"
	"github.com/jwalitptl/clinic-queue/internal/service/lifecycle"
	"github.com/jwalitptl/clinic-queue/internal/service/notification"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Ranker orders dentist candidates, best first.
type Ranker interface {
	Rank(candidates []*model.Dentist, at time.Time) []*model.Dentist
	Invalidate(location string)
}

// Claim is the result of a successful call-patient.
type Claim struct {
	Appointment *model.Appointment      `json:"appointment"`
	Entry       *model.QueueEntry       `json:"queue_entry"`
	Dentist     *model.Dentist          `json:"dentist"`
	Room        *model.Room             `json:"room"`
	From        model.AppointmentStatus `json:"from"`
}

type Deps struct {
	Tx           repository.Transactor
	Appointments repository.AppointmentRepository
	Queue        repository.QueueRepository
	Dentists     repository.DentistRepository
	Rooms        repository.RoomRepository
	Settings     repository.SettingsStore
	Ranker       Ranker
	Auditor      *audit.Service
	Events       *event.EventService
	Notifier     notification.Notifier
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

type Coordinator struct {
	Deps
	now func() time.Time
}

func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{Deps: deps, now: time.Now}
}

// SetClock overrides the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// Claim moves the appointment behind queue entry entryID into treatment with
// a dentist and a room. Nothing is written unless both are secured.
func (c *Coordinator) Claim(ctx context.Context, entryID uuid.UUID, location, actor string) (*Claim, error) {
	settings, err := c.Settings.Get(ctx, location)
	if err != nil {
		return nil, c.fail("error", apperrors.NewInternal(err))
	}
	if settings.IsPaused {
		return nil, c.fail("paused", apperrors.QueuePaused(location))
	}

	timer := prometheus.NewTimer(c.Metrics.ClaimLatency)
	var claim *Claim
	err = c.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		claim, err = c.claim(ctx, entryID, location)
		return err
	})
	timer.ObserveDuration()
	if err != nil {
		return nil, c.fail(outcomeOf(err), err)
	}

	c.Metrics.ClaimOutcomes.WithLabelValues("success").Inc()
	c.Metrics.Transitions.WithLabelValues(string(claim.From), string(lifecycle.InTreatment)).Inc()
	c.Ranker.Invalidate(location)
	c.afterCommit(ctx, claim, actor)
	return claim, nil
}

func (c *Coordinator) claim(ctx context.Context, entryID uuid.UUID, location string) (*Claim, error) {
	entry, err := c.Queue.GetForUpdate(ctx, entryID)
	if err != nil {
		return nil, notFound("queue entry", err)
	}
	if entry.ClinicLocation != location {
		return nil, apperrors.Validation(fmt.Sprintf("queue entry belongs to %s, not %s", entry.ClinicLocation, location), nil)
	}

	appt, err := c.Appointments.GetForUpdate(ctx, entry.AppointmentID)
	if err != nil {
		return nil, notFound("appointment", err)
	}
	if appt.Status == lifecycle.InTreatment || appt.Status.Terminal() {
		return nil, apperrors.ConcurrencyConflict("patient already handled", nil)
	}

	decision, err := lifecycle.Request(appt.Status, lifecycle.InTreatment, lifecycle.ModeNormal)
	if err != nil {
		return nil, err
	}
	if !decision.Delegated {
		return nil, apperrors.InvalidTransition(string(appt.Status), string(lifecycle.InTreatment), "patient is not checked in")
	}
	from := appt.Status
	now := c.now().UTC()

	// Replay hops ahead of the claim, e.g. checked_in -> waiting.
	for _, step := range decision.Steps[:len(decision.Steps)-1] {
		appt.Status = step.To
		if step.Has(lifecycle.EffectClearCalled) {
			appt.CalledAt = nil
		}
		if err := c.Appointments.UpdateStatus(ctx, appt, step.From); err != nil {
			return nil, casErr(err)
		}
		if err := c.Queue.Mirror(ctx, appt.ID, step.To); err != nil {
			return nil, err
		}
	}
	prior := appt.Status

	dentist, err := c.takeDentist(ctx, location, now)
	if err != nil {
		return nil, err
	}
	rooms, err := c.Rooms.LockFree(ctx, location)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, apperrors.ResourceUnavailable(apperrors.ResourceRoom)
	}
	room := rooms[0]

	if err := c.Queue.Bind(ctx, entry.ID, dentist.ID, room.ID); err != nil {
		return nil, err
	}
	appt.Status = lifecycle.InTreatment
	appt.TreatmentStartedAt = &now
	appt.DentistID = &dentist.ID
	if err := c.Appointments.UpdateStatus(ctx, appt, prior); err != nil {
		return nil, casErr(err)
	}
	if err := c.Queue.Mirror(ctx, appt.ID, lifecycle.InTreatment); err != nil {
		return nil, err
	}
	if err := c.Rooms.SetOccupied(ctx, room.ID, true); err != nil {
		return nil, err
	}

	entry.DentistID = &dentist.ID
	entry.RoomID = &room.ID
	entry.QueueStatus = model.QueueStatusInTreatment
	dentist.Availability = model.AvailabilityBusy
	room.Occupied = true

	return &Claim{Appointment: appt, Entry: entry, Dentist: dentist, Room: room, From: from}, nil
}

// takeDentist walks the ranked candidates and keeps the first one whose
// available -> busy swap succeeds.
func (c *Coordinator) takeDentist(ctx context.Context, location string, now time.Time) (*model.Dentist, error) {
	candidates, err := c.Dentists.LockAvailable(ctx, location)
	if err != nil {
		return nil, err
	}
	for _, d := range c.Ranker.Rank(candidates, now) {
		err := c.Dentists.MarkBusy(ctx, d.ID)
		if errors.Is(err, repository.ErrResourceTaken) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, apperrors.ResourceUnavailable(apperrors.ResourceDentist)
}

func (c *Coordinator) afterCommit(ctx context.Context, claim *Claim, actor string) {
	appt := claim.Appointment
	c.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionClaim,
		EntityType: model.AuditEntityAppointment,
		EntityID:   appt.ID,
		Location:   appt.ClinicLocation,
		Before:     map[string]interface{}{"status": claim.From},
		After: map[string]interface{}{
			"status":     appt.Status,
			"dentist_id": claim.Dentist.ID,
			"room_id":    claim.Room.ID,
		},
	})
	c.Events.EmitQuietly(ctx, model.EventTreatmentStarted, model.AppointmentSignal{
		AppointmentID:  appt.ID,
		ClinicLocation: appt.ClinicLocation,
		Status:         appt.Status,
		QueueNumber:    claim.Entry.QueueNumber,
		DentistID:      &claim.Dentist.ID,
		RoomID:         &claim.Room.ID,
		ActorID:        actor,
		OccurredAt:     *appt.TreatmentStartedAt,
	})
	c.Notifier.Notify(ctx, appt.PatientPhone,
		fmt.Sprintf("Queue #%d: please proceed to %s, %s is ready for you.", claim.Entry.QueueNumber, claim.Room.Name, claim.Dentist.Name))
	c.Logger.Info("Patient called into treatment",
		"appointment_id", appt.ID.String(),
		"dentist_id", claim.Dentist.ID.String(),
		"room_id", claim.Room.ID.String())
}

func (c *Coordinator) fail(outcome string, err error) error {
	c.Metrics.ClaimOutcomes.WithLabelValues(outcome).Inc()
	if outcome == "error" {
		c.Logger.Error(err, "Claim failed")
		if _, ok := apperrors.As(err); !ok {
			return apperrors.NewInternal(err)
		}
	}
	return err
}

func outcomeOf(err error) string {
	appErr, ok := apperrors.As(err)
	if !ok {
		return "error"
	}
	switch appErr.Kind {
	case apperrors.KindResourceUnavailable:
		return appErr.Resource + "_unavailable"
	case apperrors.KindConcurrencyConflict:
		return "conflict"
	case apperrors.KindInvalidTransition, apperrors.KindValidation, apperrors.KindNotFound:
		return "rejected"
	case apperrors.KindQueuePaused:
		return "paused"
	}
	return "error"
}

func notFound(what string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound(what, err)
	}
	return err
}

func casErr(err error) error {
	if errors.Is(err, repository.ErrStatusConflict) {
		return apperrors.ConcurrencyConflict("appointment changed concurrently", err)
	}
	return notFound("appointment", err)
}
