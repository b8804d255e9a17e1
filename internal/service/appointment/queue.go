package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	"github.com/jwalitptl/clinic-queue/internal/service/orchestrator"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

// QueueState is returned by pause and resume.
type QueueState struct {
	Settings *model.ClinicQueueSettings `json:"settings"`
	Advance  *orchestrator.Result       `json:"advance,omitempty"`
}

func (s *Service) PauseQueue(ctx context.Context, location, actor string) (*QueueState, error) {
	return s.setPaused(ctx, location, true, actor)
}

// ResumeQueue clears the pause flag and lets auto-advance call the next
// patient straight away.
func (s *Service) ResumeQueue(ctx context.Context, location, actor string) (*QueueState, error) {
	st, err := s.setPaused(ctx, location, false, actor)
	if err != nil {
		return nil, err
	}
	if s.Advancer != nil {
		r := s.Advancer.Advance(ctx, location, orchestrator.TriggerResumed)
		st.Advance = &r
	}
	return st, nil
}

func (s *Service) setPaused(ctx context.Context, location string, paused bool, actor string) (*QueueState, error) {
	if location == "" {
		return nil, s.reject(apperrors.Validation("clinic_location is required", nil))
	}
	before, err := s.Settings.Get(ctx, location)
	if err != nil {
		return nil, s.reject(apperrors.NewInternal(err))
	}
	settings, err := s.Settings.SetPaused(ctx, location, paused, actor)
	if err != nil {
		return nil, s.reject(apperrors.NewInternal(err))
	}

	action, eventType := model.AuditActionResume, model.EventQueueResumed
	if paused {
		action, eventType = model.AuditActionPause, model.EventQueuePaused
	}
	s.Auditor.RecordQuietly(ctx, audit.Entry{
		ActorID:    actor,
		Action:     action,
		EntityType: model.AuditEntityQueue,
		EntityID:   uuid.Nil,
		Location:   location,
		Before:     map[string]interface{}{"is_paused": before.IsPaused},
		After:      map[string]interface{}{"is_paused": paused},
	})
	s.Events.EmitQuietly(ctx, eventType, settings)
	s.Logger.Info("Queue pause flag changed", "clinic_location", location, "paused", paused, "actor", actor)
	return &QueueState{Settings: settings}, nil
}

func (s *Service) QueueSettings(ctx context.Context, location string) (*model.ClinicQueueSettings, error) {
	if location == "" {
		return nil, apperrors.Validation("clinic_location is required", nil)
	}
	st, err := s.Settings.Get(ctx, location)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return st, nil
}

// QueueBoard lists the day's queue for a location. A zero day means today.
func (s *Service) QueueBoard(ctx context.Context, location string, day time.Time) ([]*model.QueueBoardItem, error) {
	if day.IsZero() {
		day = s.now()
	}
	return s.Queue.Board(ctx, location, day)
}
