package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// AuditRepository handles audit log persistence. Entries are append-only;
// there is deliberately no update or delete.
type AuditRepository struct {
	db *database.Postgres
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *database.Postgres) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts a new audit log entry
func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditLogEntry) error {
	diffJSON, err := json.Marshal(entry.Diff)
	if err != nil {
		diffJSON = []byte("{}")
	}

	query := `
		INSERT INTO audit_logs (id, tenant_id, actor_id, entity_name, entity_id,
		    action, diff, request_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.ActorID,
		entry.EntityName,
		entry.EntityID,
		entry.Action,
		diffJSON,
		entry.RequestIP,
		entry.UserAgent,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}
