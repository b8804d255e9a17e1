package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

// Entry is one audited change. Before and After are marshalled as JSON.
type Entry struct {
	ActorID    string
	Action     string
	EntityType string
	EntityID   uuid.UUID
	Location   string
	Before     interface{}
	After      interface{}
	Metadata   map[string]interface{}
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

type Service struct {
	repo   repository.AuditRepository
	logger *logger.Logger
	now    func() time.Time
}

func NewService(repo repository.AuditRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log, now: time.Now}
}

func (s *Service) Record(ctx context.Context, e Entry) error {
	before, err := marshal(e.Before)
	if err != nil {
		return fmt.Errorf("marshal before: %w", err)
	}
	after, err := marshal(e.After)
	if err != nil {
		return fmt.Errorf("marshal after: %w", err)
	}
	metadata, err := marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	actor := e.ActorID
	if actor == "" {
		actor = model.SystemActor
	}

	return s.repo.Create(ctx, &model.AuditLog{
		ID:             uuid.New(),
		ActorID:        actor,
		Action:         e.Action,
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		ClinicLocation: e.Location,
		Before:         before,
		After:          after,
		Metadata:       metadata,
		CreatedAt:      s.now().UTC(),
	})
}

// RecordQuietly records e and logs a failure instead of returning it. Used
// after a commit, where the change itself must not be reported as failed.
func (s *Service) RecordQuietly(ctx context.Context, e Entry) {
	if err := s.Record(ctx, e); err != nil {
		s.logger.Error(err, "Failed to write audit log",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID.String())
	}
}

func (s *Service) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, entityType, entityID)
}

func marshal(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]interface{}); ok && len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
