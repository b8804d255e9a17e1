package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(db *sqlx.DB) repository.AuditRepository {
	return &auditRepository{NewBaseRepository(db)}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, action, entity_type, entity_id, clinic_location,
			before_state, after_state, metadata, created_at
		) VALUES (
			:id, :actor_id, :action, :entity_type, :entity_id, :clinic_location,
			:before_state, :after_state, :metadata, :created_at
		)`
	if _, err := r.conn(ctx).NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	logs := []*model.AuditLog{}
	query := `
		SELECT id, actor_id, action, entity_type, entity_id, clinic_location,
			before_state, after_state, metadata, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at`
	if err := r.conn(ctx).SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return logs, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	return result.RowsAffected()
}
