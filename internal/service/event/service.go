package event

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

// Emitter writes domain signals to the outbox; the worker publishes them.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload interface{}) error
}

type EventService struct {
	outboxRepo repository.OutboxRepository
	logger     *logger.Logger
	now        func() time.Time
}

func NewEventService(outboxRepo repository.OutboxRepository, log *logger.Logger) *EventService {
	return &EventService{outboxRepo: outboxRepo, logger: log, now: time.Now}
}

func (s *EventService) Emit(ctx context.Context, eventType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	now := s.now().UTC()
	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   payloadJSON,
		Status:    model.OutboxStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// EmitQuietly logs instead of returning the error.
func (s *EventService) EmitQuietly(ctx context.Context, eventType string, payload interface{}) {
	if err := s.Emit(ctx, eventType, payload); err != nil {
		s.logger.Error(err, "Failed to emit event", "event_type", eventType)
	}
}
