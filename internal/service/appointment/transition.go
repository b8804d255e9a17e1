package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	"github.com/jwalitptl/clinic-queue/internal/service/lifecycle"
	"github.com/jwalitptl/clinic-queue/internal/service/orchestrator"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

// committed is one step that reached the database, with what the post-commit
// work needs.
type committed struct {
	step  lifecycle.Step
	appt  *model.Appointment
	entry *model.QueueEntry
}

// Transition moves an appointment to target. in_treatment is handed to the
// resource claim.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, target model.AppointmentStatus, reason, actor string) (*Result, error) {
	return s.transition(ctx, id, target, reason, actor, model.AuditActionTransition)
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, actor string) (*Result, error) {
	return s.Transition(ctx, id, lifecycle.CheckedIn, "", actor)
}

// CallNext moves an appointment to called on behalf of auto-advance.
func (s *Service) CallNext(ctx context.Context, id uuid.UUID) error {
	_, err := s.transition(ctx, id, lifecycle.Called, "", model.SystemActor, model.AuditActionAutoCall)
	return err
}

// CallPatient claims a dentist and a room for a queue entry.
func (s *Service) CallPatient(ctx context.Context, entryID uuid.UUID, location, actor string) (*Result, error) {
	claim, err := s.Claimer.Claim(ctx, entryID, location, actor)
	if err != nil {
		return nil, s.reject(err)
	}
	return &Result{
		Appointment: claim.Appointment,
		QueueEntry:  claim.Entry,
		Claim:       claim,
		Steps:       []StepRecord{{From: claim.From, To: lifecycle.InTreatment}},
	}, nil
}

// CompleteTreatment completes an in-treatment appointment. Appointments that
// never got that far are walked there retroactively; completing twice is a
// no-op.
func (s *Service) CompleteTreatment(ctx context.Context, id uuid.UUID, actor string) (*Result, error) {
	appt, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return nil, s.reject(notFound(err))
	}
	switch appt.Status {
	case lifecycle.Completed, lifecycle.FeedbackScheduled, lifecycle.FeedbackSent:
		return &Result{Appointment: appt, Noop: true}, nil
	case lifecycle.InTreatment:
		return s.Transition(ctx, id, lifecycle.Completed, "", actor)
	}
	if appt.Status.Terminal() {
		return nil, s.reject(apperrors.InvalidTransition(string(appt.Status), string(lifecycle.Completed), "already terminal"))
	}
	return s.ForceComplete(ctx, id, "", actor)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, target model.AppointmentStatus, reason, actor, action string) (*Result, error) {
	current, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return nil, s.reject(notFound(err))
	}
	decision, err := lifecycle.Request(current.Status, target, lifecycle.ModeNormal)
	if err != nil {
		return nil, s.reject(err)
	}
	if decision.Noop {
		return &Result{Appointment: current, Noop: true}, nil
	}
	if decision.Delegated {
		return s.delegate(ctx, current, decision, actor)
	}

	var done []committed
	var settled *model.Appointment
	err = s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		done, settled = nil, nil
		appt, err := s.Appointments.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		// Re-decide under the row lock; the status may have moved.
		decision, err := lifecycle.Request(appt.Status, target, lifecycle.ModeNormal)
		if err != nil {
			return err
		}
		if decision.Noop {
			// Another request already reached target.
			settled = appt
			return nil
		}
		if decision.Delegated {
			return apperrors.ConcurrencyConflict("appointment changed concurrently", nil)
		}
		for _, step := range decision.Steps {
			c, err := s.applyStep(ctx, appt, step, lifecycle.ModeNormal, reason)
			if err != nil {
				return err
			}
			done = append(done, c)
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(err)
	}
	if settled != nil {
		return &Result{Appointment: settled, Noop: true}, nil
	}

	res := s.afterCommit(ctx, done, actor, action, reason)
	return res, nil
}

// delegate runs every step ahead of in_treatment through the claim, which
// replays them itself inside its own transaction.
func (s *Service) delegate(ctx context.Context, appt *model.Appointment, decision lifecycle.Decision, actor string) (*Result, error) {
	entry, err := s.Queue.EntryFor(ctx, appt.ID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, s.reject(apperrors.InvalidTransition(string(appt.Status), string(lifecycle.InTreatment), "patient has no queue entry"))
		}
		return nil, s.reject(err)
	}
	res, err := s.CallPatient(ctx, entry.ID, appt.ClinicLocation, actor)
	if err != nil {
		return nil, err
	}
	res.Steps = records(decision.Steps)
	return res, nil
}

// applyStep executes one lifecycle step against appt inside the caller's
// transaction. appt is updated in place.
func (s *Service) applyStep(ctx context.Context, appt *model.Appointment, step lifecycle.Step, mode lifecycle.Mode, reason string) (committed, error) {
	if appt.Status != step.From {
		return committed{}, apperrors.ConcurrencyConflict("appointment changed concurrently", nil)
	}
	now := s.now().UTC()
	for _, e := range step.Effects {
		switch e {
		case lifecycle.EffectStampCheckIn:
			appt.CheckedInAt = &now
		case lifecycle.EffectStampCalled:
			appt.CalledAt = &now
		case lifecycle.EffectClearCalled:
			appt.CalledAt = nil
		case lifecycle.EffectStampTreatmentStart:
			appt.TreatmentStartedAt = &now
		case lifecycle.EffectStampTreatmentEnd:
			appt.TreatmentEndedAt = &now
		case lifecycle.EffectRecordCancelReason:
			if reason != "" {
				r := reason
				appt.CancelReason = &r
			}
		case lifecycle.EffectClaimResources:
			return committed{}, apperrors.NewInternal(fmt.Errorf("%s -> %s requires a resource claim", step.From, step.To))
		}
	}

	if step.Has(lifecycle.EffectReleaseResources) {
		released, err := s.Queue.Release(ctx, appt.ID)
		if err != nil {
			return committed{}, fmt.Errorf("release resources: %w", err)
		}
		if released != nil && released.Bound() {
			s.Logger.Debug("Released resources",
				"appointment_id", appt.ID.String(),
				"queue_entry_id", released.ID.String())
		}
	}

	appt.Status = step.To
	if err := s.Appointments.UpdateStatus(ctx, appt, step.From); err != nil {
		return committed{}, casErr(err)
	}

	var entry *model.QueueEntry
	if step.Has(lifecycle.EffectCreateQueueEntry) {
		day := s.Queue.Today()
		if mode == lifecycle.ModeReplay {
			day = s.Queue.ReplayDay(appt)
		}
		e, err := s.Queue.Enqueue(ctx, appt, day)
		if err != nil {
			return committed{}, fmt.Errorf("enqueue: %w", err)
		}
		entry = e
	}
	if step.Has(lifecycle.EffectMirrorQueue) {
		if err := s.Queue.Mirror(ctx, appt.ID, appt.Status); err != nil {
			return committed{}, fmt.Errorf("mirror queue status: %w", err)
		}
	}
	if entry == nil {
		e, err := s.Queue.EntryFor(ctx, appt.ID)
		if err != nil && !apperrors.IsKind(err, apperrors.KindNotFound) {
			return committed{}, err
		}
		entry = e
	}
	return committed{step: step, appt: appt.Clone(), entry: entry}, nil
}

// afterCommit records, signals and notifies for committed steps, then runs
// auto-advance when a step asked for it. Nothing here can fail the operation.
func (s *Service) afterCommit(ctx context.Context, done []committed, actor, action, reason string) *Result {
	res := &Result{}
	var advance orchestrator.Trigger
	for _, c := range done {
		s.Metrics.Transitions.WithLabelValues(string(c.step.From), string(c.step.To)).Inc()
		if c.step.Has(lifecycle.EffectReleaseResources) {
			s.invalidateRoster(c.appt.ClinicLocation)
		}

		meta := map[string]interface{}{}
		if reason != "" {
			meta["reason"] = reason
		}
		s.Auditor.RecordQuietly(ctx, audit.Entry{
			ActorID:    actor,
			Action:     action,
			EntityType: model.AuditEntityAppointment,
			EntityID:   c.appt.ID,
			Location:   c.appt.ClinicLocation,
			Before:     map[string]interface{}{"status": c.step.From},
			After:      map[string]interface{}{"status": c.step.To},
			Metadata:   meta,
		})

		if eventType, ok := signalFor(c.step.To); ok {
			s.Events.EmitQuietly(ctx, eventType, signal(c, actor, s.now()))
		}
		if c.step.Has(lifecycle.EffectNotifyPatient) {
			s.Notifier.Notify(ctx, c.appt.PatientPhone, notifyMessage(c))
		}
		if c.step.Has(lifecycle.EffectSignalOrchestrator) {
			advance = orchestrator.TriggerCompleted
			if c.step.To != lifecycle.Completed {
				advance = orchestrator.TriggerCancelled
			}
		}
		if c.step.To == lifecycle.CheckedIn && c.appt.WalkIn {
			advance = orchestrator.TriggerWalkIn
		}

		res.Appointment = c.appt
		res.QueueEntry = c.entry
		res.Steps = append(res.Steps, StepRecord{From: c.step.From, To: c.step.To})
	}

	if advance != "" && res.Appointment != nil && s.Advancer != nil {
		r := s.Advancer.Advance(ctx, res.Appointment.ClinicLocation, advance)
		res.Advance = &r
	}
	return res
}

// ForceComplete walks a stale appointment through every intermediate status
// up to completed. Each step commits on its own; the first failure stops the
// walk and is reported with the status reached.
func (s *Service) ForceComplete(ctx context.Context, id uuid.UUID, reason, actor string) (*Result, error) {
	appt, err := s.Appointments.Get(ctx, id)
	if err != nil {
		return nil, s.reject(notFound(err))
	}
	if appt.Status == lifecycle.Completed || appt.Status == lifecycle.FeedbackScheduled || appt.Status == lifecycle.FeedbackSent {
		return &Result{Appointment: appt, Noop: true}, nil
	}
	steps, err := lifecycle.PlanReplay(appt.Status, lifecycle.Completed)
	if err != nil {
		return nil, s.reject(err)
	}

	reached := appt.Status
	var done []committed
	for _, step := range steps {
		var c committed
		err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
			locked, err := s.Appointments.GetForUpdate(ctx, id)
			if err != nil {
				return notFound(err)
			}
			c, err = s.applyStep(ctx, locked, step, lifecycle.ModeReplay, reason)
			return err
		})
		if err != nil {
			// Steps already committed still get their audit trail.
			s.afterCommit(ctx, done, actor, model.AuditActionForceComplete, reason)
			return nil, s.reject(&ReplayError{
				Reached: reached,
				Failed:  StepRecord{From: step.From, To: step.To},
				Err:     err,
			})
		}
		reached = step.To
		done = append(done, c)
	}

	return s.afterCommit(ctx, done, actor, model.AuditActionForceComplete, reason), nil
}

// Override reopens a terminal appointment to booked or confirmed. Visit
// stamps are cleared so the appointment can be checked in again.
func (s *Service) Override(ctx context.Context, id uuid.UUID, target model.AppointmentStatus, reason, actor string) (*Result, error) {
	var before model.AppointmentStatus
	var after *model.Appointment
	err := s.Tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.Appointments.GetForUpdate(ctx, id)
		if err != nil {
			return notFound(err)
		}
		step, err := lifecycle.Override(appt.Status, target, reason)
		if err != nil {
			return err
		}
		before = appt.Status

		if _, err := s.Queue.Release(ctx, appt.ID); err != nil {
			return fmt.Errorf("release resources: %w", err)
		}
		appt.Status = step.To
		appt.CheckedInAt = nil
		appt.CalledAt = nil
		appt.TreatmentStartedAt = nil
		appt.TreatmentEndedAt = nil
		appt.CancelReason = nil
		if err := s.Appointments.UpdateStatus(ctx, appt, step.From); err != nil {
			return casErr(err)
		}
		if err := s.Queue.Mirror(ctx, appt.ID, appt.Status); err != nil {
			return err
		}
		after = appt
		return nil
	})
	if err != nil {
		return nil, s.reject(err)
	}

	s.Metrics.Transitions.WithLabelValues(string(before), string(after.Status)).Inc()
	s.invalidateRoster(after.ClinicLocation)
	s.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     model.AuditActionOverride,
		EntityType: model.AuditEntityAppointment,
		EntityID:   id,
		Location:   after.ClinicLocation,
		Before:     map[string]interface{}{"status": before},
		After:      map[string]interface{}{"status": after.Status},
		Metadata:   map[string]interface{}{"reason": reason},
	})
	return &Result{Appointment: after, Steps: []StepRecord{{From: before, To: after.Status}}}, nil
}

func signalFor(to model.AppointmentStatus) (string, bool) {
	switch to {
	case lifecycle.CheckedIn:
		return model.EventAppointmentCheckedIn, true
	case lifecycle.Called:
		return model.EventAppointmentCalled, true
	case lifecycle.InTreatment:
		return model.EventTreatmentStarted, true
	case lifecycle.Completed:
		return model.EventTreatmentCompleted, true
	case lifecycle.Cancelled, lifecycle.NoShow:
		return model.EventAppointmentCancelled, true
	}
	return "", false
}

func signal(c committed, actor string, at time.Time) model.AppointmentSignal {
	sig := model.AppointmentSignal{
		AppointmentID:  c.appt.ID,
		ClinicLocation: c.appt.ClinicLocation,
		Status:         c.step.To,
		DentistID:      c.appt.DentistID,
		ActorID:        actor,
		OccurredAt:     at.UTC(),
	}
	if c.entry != nil {
		sig.QueueNumber = c.entry.QueueNumber
		sig.RoomID = c.entry.RoomID
	}
	return sig
}

func notifyMessage(c committed) string {
	if c.entry != nil {
		return fmt.Sprintf("Queue #%d: you are next, please stay close to the front desk.", c.entry.QueueNumber)
	}
	return "You are next, please stay close to the front desk."
}

func records(steps []lifecycle.Step) []StepRecord {
	out := make([]StepRecord, 0, len(steps))
	for _, st := range steps {
		out = append(out, StepRecord{From: st.From, To: st.To})
	}
	return out
}

func (s *Service) invalidateRoster(location string) {
	if s.Roster != nil {
		s.Roster.Invalidate(location)
	}
}
