package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// TenantRepository handles tenant persistence
type TenantRepository struct {
	db *database.Postgres
}

// NewTenantRepository creates a new TenantRepository
func NewTenantRepository(db *database.Postgres) *TenantRepository {
	return &TenantRepository{db: db}
}

// Create inserts a new tenant
func (r *TenantRepository) Create(ctx context.Context, tenant *model.Tenant) error {
	query := `INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, tenant.ID, tenant.Name, tenant.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	query := `SELECT id, name, created_at FROM tenants WHERE id = $1`
	var tenant model.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return &tenant, nil
}
