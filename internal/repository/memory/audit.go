package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type auditRepo struct {
	s *Store
}

func (r *auditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	defer r.s.guard(ctx)()

	c := *log
	r.s.audit = append(r.s.audit, &c)
	return nil
}

func (r *auditRepo) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	defer r.s.guard(ctx)()

	var out []*model.AuditLog
	for _, l := range r.s.audit {
		if (entityType == "" || l.EntityType == entityType) && (entityID == uuid.Nil || l.EntityID == entityID) {
			c := *l
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *auditRepo) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.guard(ctx)()

	kept := make([]*model.AuditLog, 0, len(r.s.audit))
	var removed int64
	for _, l := range r.s.audit {
		if l.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	r.s.audit = kept
	return removed, nil
}

type outboxRepo struct {
	s *Store
}

func (r *outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	defer r.s.guard(ctx)()

	c := *event
	r.s.outbox[event.ID] = &c
	return nil
}

func (r *outboxRepo) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	defer r.s.guard(ctx)()

	now := r.s.now()
	var out []*model.OutboxEvent
	for _, e := range r.s.outbox {
		due := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusFailed && e.RetryAt != nil && !e.RetryAt.After(now))
		if due {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	defer r.s.guard(ctx)()

	e, ok := r.s.outbox[id]
	if !ok {
		return repository.ErrNotFound
	}
	now := r.s.now()
	e.Status = status
	e.ErrorMessage = errorMessage
	e.RetryAt = retryAt
	e.UpdatedAt = now
	if status == model.OutboxStatusProcessed {
		e.ProcessedAt = &now
	}
	if status == model.OutboxStatusFailed {
		e.RetryCount++
	}
	return nil
}

func (r *outboxRepo) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	defer r.s.guard(ctx)()

	var removed int64
	for id, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.s.outbox, id)
			removed++
		}
	}
	return removed, nil
}
