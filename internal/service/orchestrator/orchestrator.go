// Package orchestrator keeps the waiting line moving: when a location has no
// one called or in treatment, it calls the next checked-in patient.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service/assignment"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

type Trigger string

const (
	TriggerCompleted Trigger = "completed"
	TriggerCancelled Trigger = "cancelled"
	TriggerResumed   Trigger = "resumed"
	TriggerWalkIn    Trigger = "walk_in"
)

type Outcome string

const (
	OutcomeCalled  Outcome = "called"
	OutcomeClaimed Outcome = "claimed"
	OutcomePaused  Outcome = "paused"
	OutcomeBusy    Outcome = "busy"
	OutcomeEmpty   Outcome = "empty"
	OutcomeLocked  Outcome = "locked"
	OutcomeFailed  Outcome = "failed"
)

// Result reports what one Advance did. It is informational only.
type Result struct {
	Outcome       Outcome   `json:"outcome"`
	AppointmentID uuid.UUID `json:"appointment_id,omitempty"`
}

// Caller moves an appointment to called.
type Caller interface {
	CallNext(ctx context.Context, appointmentID uuid.UUID) error
}

// Claimer runs the resource claim for a queue entry.
type Claimer interface {
	Claim(ctx context.Context, entryID uuid.UUID, location, actor string) (*assignment.Claim, error)
}

type Config struct {
	Location  *time.Location
	AutoClaim bool
}

type Orchestrator struct {
	appointments repository.AppointmentRepository
	queue        repository.QueueRepository
	settings     repository.SettingsStore
	locker       repository.Locker
	caller       Caller
	claimer      Claimer
	cfg          Config
	metrics      *metrics.Metrics
	logger       *logger.Logger
	now          func() time.Time
}

func New(
	appointments repository.AppointmentRepository,
	queue repository.QueueRepository,
	settings repository.SettingsStore,
	locker repository.Locker,
	claimer Claimer,
	cfg Config,
	m *metrics.Metrics,
	log *logger.Logger,
) *Orchestrator {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Orchestrator{
		appointments: appointments,
		queue:        queue,
		settings:     settings,
		locker:       locker,
		claimer:      claimer,
		cfg:          cfg,
		metrics:      m,
		logger:       log,
		now:          time.Now,
	}
}

// SetCaller wires the component that performs the call transition.
func (o *Orchestrator) SetCaller(c Caller) {
	o.caller = c
}

// SetClock overrides the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Advance calls the next patient at location if nobody is active there
// today. It never returns an error: failures are logged and counted so the
// operation that triggered it is unaffected.
func (o *Orchestrator) Advance(ctx context.Context, location string, trigger Trigger) Result {
	res := o.advance(ctx, location)
	o.metrics.AdvanceOutcomes.WithLabelValues(string(trigger), string(res.Outcome)).Inc()
	o.logger.Debug("Queue advance",
		"clinic_location", location,
		"trigger", string(trigger),
		"outcome", string(res.Outcome))
	return res
}

func (o *Orchestrator) advance(ctx context.Context, location string) Result {
	if o.caller == nil {
		return Result{Outcome: OutcomeFailed}
	}
	settings, err := o.settings.Get(ctx, location)
	if err != nil {
		o.logger.Error(err, "Auto-advance could not read queue settings", "clinic_location", location)
		return Result{Outcome: OutcomeFailed}
	}
	if settings.IsPaused {
		return Result{Outcome: OutcomePaused}
	}

	var res Result
	err = o.locker.WithLock(ctx, "advance:"+location, func(ctx context.Context) error {
		var err error
		res, err = o.callNext(ctx, location)
		return err
	})
	switch {
	case errors.Is(err, repository.ErrLockNotAcquired):
		return Result{Outcome: OutcomeLocked}
	case err != nil:
		o.logger.Error(err, "Auto-advance failed", "clinic_location", location)
		return Result{Outcome: OutcomeFailed, AppointmentID: res.AppointmentID}
	}
	return res
}

func (o *Orchestrator) callNext(ctx context.Context, location string) (Result, error) {
	start, end := model.DayBounds(o.now(), o.cfg.Location)

	active, err := o.appointments.CountActive(ctx, location, start, end)
	if err != nil {
		return Result{}, err
	}
	if active > 0 {
		return Result{Outcome: OutcomeBusy}, nil
	}

	next, err := o.appointments.NextCandidate(ctx, location, start, end)
	if errors.Is(err, repository.ErrNotFound) {
		return Result{Outcome: OutcomeEmpty}, nil
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{Outcome: OutcomeCalled, AppointmentID: next.ID}
	if err := o.caller.CallNext(ctx, next.ID); err != nil {
		return res, err
	}

	if !o.cfg.AutoClaim || o.claimer == nil {
		return res, nil
	}
	entry, err := o.queue.GetByAppointment(ctx, next.ID)
	if err != nil {
		o.logger.Error(err, "Auto-claim could not find queue entry", "appointment_id", next.ID.String())
		return res, nil
	}
	if _, err := o.claimer.Claim(ctx, entry.ID, location, model.SystemActor); err != nil {
		o.logger.Warn("Auto-claim skipped",
			"appointment_id", next.ID.String(),
			"reason", err.Error())
		return res, nil
	}
	res.Outcome = OutcomeClaimed
	return res, nil
}
