package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// AdminRepository handles the singleton admin security config row
type AdminRepository struct {
	db *database.Postgres
}

// NewAdminRepository creates a new AdminRepository
func NewAdminRepository(db *database.Postgres) *AdminRepository {
	return &AdminRepository{db: db}
}

// Get retrieves the admin security config
func (r *AdminRepository) Get(ctx context.Context) (*model.AdminSecurityConfig, error) {
	query := `
		SELECT username, password_hash, totp_secret, updated_at
		FROM admin_security_config
		LIMIT 1
	`
	var cfg model.AdminSecurityConfig
	err := r.db.QueryRowContext(ctx, query).Scan(
		&cfg.Username,
		&cfg.PasswordHash,
		&cfg.TOTPSecret,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get admin config: %w", err)
	}
	return &cfg, nil
}

// Upsert stores the admin security config, replacing any existing row
func (r *AdminRepository) Upsert(ctx context.Context, cfg *model.AdminSecurityConfig) error {
	query := `
		INSERT INTO admin_security_config (singleton, username, password_hash, totp_secret, updated_at)
		VALUES (true, $1, $2, $3, $4)
		ON CONFLICT (singleton) DO UPDATE
		SET username = $1, password_hash = $2, totp_secret = $3, updated_at = $4
	`
	_, err := r.db.ExecContext(ctx, query, cfg.Username, cfg.PasswordHash, cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert admin config: %w", err)
	}
	return nil
}
