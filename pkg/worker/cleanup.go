package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
)

// CleanupWorker prunes audit rows and delivered outbox events past their
// retention.
type CleanupWorker struct {
	audit           repository.AuditRepository
	outbox          repository.OutboxRepository
	auditDays       int
	outboxDays      int
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewCleanupWorker(audit repository.AuditRepository, outbox repository.OutboxRepository, auditDays, outboxDays int, cleanupInterval time.Duration, log *logger.Logger) *CleanupWorker {
	return &CleanupWorker{
		audit:           audit,
		outbox:          outbox,
		auditDays:       auditDays,
		outboxDays:      outboxDays,
		cleanupInterval: cleanupInterval,
		logger:          log,
		now:             time.Now,
	}
}

func (w *CleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "Cleanup failed")
			}
		}
	}
}

func (w *CleanupWorker) Cleanup(ctx context.Context) error {
	now := w.now()
	if w.auditDays > 0 {
		cutoff := now.AddDate(0, 0, -w.auditDays)
		rows, err := w.audit.Cleanup(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup audit logs: %w", err)
		}
		w.logger.Info("Cleaned up audit logs", "rows", rows, "cutoff", cutoff)
	}
	if w.outboxDays > 0 {
		cutoff := now.AddDate(0, 0, -w.outboxDays)
		rows, err := w.outbox.DeleteProcessedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("failed to cleanup outbox events: %w", err)
		}
		w.logger.Info("Cleaned up outbox events", "rows", rows, "cutoff", cutoff)
	}
	return nil
}
