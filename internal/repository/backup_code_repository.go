package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// BackupCodeRepository handles backup-code persistence
type BackupCodeRepository struct {
	db *database.Postgres
}

// NewBackupCodeRepository creates a new BackupCodeRepository
func NewBackupCodeRepository(db *database.Postgres) *BackupCodeRepository {
	return &BackupCodeRepository{db: db}
}

// ReplaceAll deletes the user's existing backup codes and stores the new
// set in a single transaction. Regeneration always replaces the whole set.
func (r *BackupCodeRepository) ReplaceAll(ctx context.Context, userID string, codes []*model.BackupCode) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}

	insert := `
		INSERT INTO backup_codes (id, user_id, code_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, insert, code.ID, code.UserID, code.CodeHash, code.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit backup codes: %w", err)
	}
	return nil
}

// DeleteAll removes every backup code for the user
func (r *BackupCodeRepository) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}

// GetUnused returns the user's unconsumed backup codes
func (r *BackupCodeRepository) GetUnused(ctx context.Context, userID string) ([]*model.BackupCode, error) {
	query := `
		SELECT id, user_id, code_hash, used_at, created_at
		FROM backup_codes
		WHERE user_id = $1 AND used_at IS NULL
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get backup codes: %w", err)
	}
	defer rows.Close()

	var codes []*model.BackupCode
	for rows.Next() {
		var code model.BackupCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.UsedAt, &code.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		codes = append(codes, &code)
	}
	return codes, rows.Err()
}

// MarkUsed consumes a backup code. The guard on used_at makes consumption
// single-winner under concurrency.
func (r *BackupCodeRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE backup_codes SET used_at = $1 WHERE id = $2 AND used_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark backup code used: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountUnused counts the user's remaining backup codes
func (r *BackupCodeRepository) CountUnused(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM backup_codes WHERE user_id = $1 AND used_at IS NULL`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}
