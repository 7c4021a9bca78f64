package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// TokenRepository handles single-use token persistence
type TokenRepository struct {
	db *database.Postgres
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.Postgres) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create stores a new single-use token
func (r *TokenRepository) Create(ctx context.Context, token *model.SingleUseToken) error {
	query := `
		INSERT INTO single_use_tokens (id, user_id, purpose, token_hash, expires_at,
		    request_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		token.Purpose,
		token.TokenHash,
		token.ExpiresAt,
		token.RequestIP,
		token.UserAgent,
		token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create single-use token: %w", err)
	}
	return nil
}

// ConsumeByHash atomically marks the matching unexpired, unused token as
// consumed and returns it. The single guarded UPDATE guarantees that two
// concurrent consume calls for the same token cannot both succeed: exactly
// one caller observes used_at IS NULL and wins. A lookup miss, an expired
// token, and an already-used token all return ErrNotFound.
func (r *TokenRepository) ConsumeByHash(ctx context.Context, tokenHash string, purpose model.TokenPurpose) (*model.SingleUseToken, error) {
	query := `
		UPDATE single_use_tokens
		SET used_at = $1
		WHERE token_hash = $2 AND purpose = $3 AND used_at IS NULL AND expires_at > $1
		RETURNING id, user_id, purpose, token_hash, expires_at, used_at,
		          request_ip, user_agent, created_at
	`
	now := time.Now()
	var token model.SingleUseToken
	err := r.db.QueryRowContext(ctx, query, now, tokenHash, purpose).Scan(
		&token.ID,
		&token.UserID,
		&token.Purpose,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.UsedAt,
		&token.RequestIP,
		&token.UserAgent,
		&token.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume single-use token: %w", err)
	}
	return &token, nil
}

// InvalidateAllForUser stamps every outstanding, unused token of the given
// purpose for the user, except the one identified by exceptID (pass "" to
// invalidate all). Called when a token is consumed or a replacement issued,
// so stale links cannot be replayed.
func (r *TokenRepository) InvalidateAllForUser(ctx context.Context, userID string, purpose model.TokenPurpose, exceptID string) error {
	query := `
		UPDATE single_use_tokens
		SET used_at = $1
		WHERE user_id = $2 AND purpose = $3 AND used_at IS NULL AND id <> $4
	`
	_, err := r.db.ExecContext(ctx, query, time.Now(), userID, purpose, exceptID)
	if err != nil {
		return fmt.Errorf("failed to invalidate single-use tokens: %w", err)
	}
	return nil
}

// Release clears the consumed stamp on a token so it can be redeemed
// again. Used when the operation the token guarded failed after the
// consume already won.
func (r *TokenRepository) Release(ctx context.Context, id string) error {
	query := `UPDATE single_use_tokens SET used_at = NULL WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to release single-use token: %w", err)
	}
	return nil
}

// CountRecentByUser counts tokens issued for the user since the given time,
// used to rate limit issuance.
func (r *TokenRepository) CountRecentByUser(ctx context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM single_use_tokens
		WHERE user_id = $1 AND purpose = $2 AND created_at > $3
	`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID, purpose, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent tokens: %w", err)
	}
	return count, nil
}

// CleanupExpired removes expired tokens. Delete-if-expired is commutative
// with concurrent issuance and consumption, so the background sweep can run
// alongside live traffic.
func (r *TokenRepository) CleanupExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM single_use_tokens WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	return result.RowsAffected()
}
