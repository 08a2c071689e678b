package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, actor_id, actor_role, action, entity_type, entity_id,
			before, after, flags, request_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.Flags == nil {
		log.Flags = []string{}
	}

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			log.ID,
			log.ActorID,
			log.ActorRole,
			log.Action,
			log.EntityType,
			log.EntityID,
			jsonArg(log.Before),
			jsonArg(log.After),
			log.Flags,
			log.RequestID,
			log.CreatedAt,
		)
		return translate(err, "create audit log")
	})
}

func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uuid.UUID) ([]*model.AuditLog, error) {
	query := `
		SELECT id, actor_id, actor_role, action, entity_type, entity_id,
			before, after, flags, request_id, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
	`

	logs := []*model.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, entityType, entityID); err != nil {
		return nil, translate(err, "list audit logs")
	}
	return logs, nil
}
