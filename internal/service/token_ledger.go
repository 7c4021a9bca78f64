package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
)

// TokenStore persists single-use tokens. Implemented by
// repository.TokenRepository.
type TokenStore interface {
	Create(ctx context.Context, token *model.SingleUseToken) error
	ConsumeByHash(ctx context.Context, tokenHash string, purpose model.TokenPurpose) (*model.SingleUseToken, error)
	InvalidateAllForUser(ctx context.Context, userID string, purpose model.TokenPurpose, exceptID string) error
	CountRecentByUser(ctx context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error)
	Release(ctx context.Context, id string) error
}

// Hard cap on issuance per user and purpose, counted in the database so it
// holds even when the cooldown store is unavailable.
const (
	maxIssuesPerWindow = 3
	issueWindow        = time.Hour
)

// CooldownStore guards token reissuance with a set-if-absent key.
// Implemented by database.Redis.
type CooldownStore interface {
	SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// TokenLedger manages the lifecycle of email verification and password
// reset tokens: issuance with a per-user resend cooldown, sibling
// invalidation so only the newest link works, and atomic single-use
// consumption.
type TokenLedger struct {
	store    TokenStore
	cooldown CooldownStore
	cfg      config.TokenConfig
	log      *logger.Logger
}

// NewTokenLedger creates a new TokenLedger. cooldown may be nil, in which
// case reissuance is not throttled.
func NewTokenLedger(store TokenStore, cooldown CooldownStore, cfg config.TokenConfig, log *logger.Logger) *TokenLedger {
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = 60 * time.Second
	}
	return &TokenLedger{
		store:    store,
		cooldown: cooldown,
		cfg:      cfg,
		log:      log.WithComponent("token_ledger"),
	}
}

// Issue creates a fresh single-use token for the user and invalidates any
// outstanding siblings of the same purpose, so only the newest emailed link
// remains valid. Returns the raw token alongside the stored record; the raw
// value is never persisted. ErrResendCooldown is returned when a token of
// the same purpose was issued within the cooldown window.
func (l *TokenLedger) Issue(ctx context.Context, userID string, purpose model.TokenPurpose, requestIP, userAgent string) (string, *model.SingleUseToken, error) {
	recent, err := l.store.CountRecentByUser(ctx, userID, purpose, time.Now().Add(-issueWindow))
	if err != nil {
		return "", nil, err
	}
	if recent >= maxIssuesPerWindow {
		l.log.Warn().Str("user_id", userID).Str("purpose", string(purpose)).
			Int("count", recent).Msg("token issuance rate limit reached")
		return "", nil, ErrResendCooldown
	}

	if err := l.checkCooldown(ctx, userID, purpose); err != nil {
		return "", nil, err
	}

	raw, err := generateRawToken()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	token := &model.SingleUseToken{
		ID:        newID("tok"),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: auth.HashToken(raw),
		ExpiresAt: now.Add(l.ttlFor(purpose)),
		RequestIP: requestIP,
		UserAgent: userAgent,
		CreatedAt: now,
	}

	if err := l.store.Create(ctx, token); err != nil {
		return "", nil, err
	}

	if err := l.store.InvalidateAllForUser(ctx, userID, purpose, token.ID); err != nil {
		// The new token is already live; stale siblings expire on their own
		l.log.Warn().Err(err).Str("user_id", userID).Str("purpose", string(purpose)).
			Msg("failed to invalidate sibling tokens on issue")
	}

	return raw, token, nil
}

// Consume atomically redeems a raw token of the given purpose. A miss, an
// expired token, and an already-used token are indistinguishable to the
// caller: all yield ErrInvalidOrExpiredToken. On success every remaining
// sibling of the same purpose is invalidated as well.
func (l *TokenLedger) Consume(ctx context.Context, raw string, purpose model.TokenPurpose) (*model.SingleUseToken, error) {
	token, err := l.store.ConsumeByHash(ctx, auth.HashToken(raw), purpose)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, err
	}

	if err := l.store.InvalidateAllForUser(ctx, token.UserID, purpose, ""); err != nil {
		l.log.Warn().Err(err).Str("user_id", token.UserID).Str("purpose", string(purpose)).
			Msg("failed to invalidate sibling tokens on consume")
	}

	return token, nil
}

// Release returns a consumed token to circulation. Called when the side
// effect the token guarded could not be applied after the consume won, so
// a transient store failure does not burn the emailed link.
func (l *TokenLedger) Release(ctx context.Context, id string) {
	if err := l.store.Release(ctx, id); err != nil {
		l.log.Error().Err(err).Str("token_id", id).Msg("failed to release consumed token")
	}
}

func (l *TokenLedger) checkCooldown(ctx context.Context, userID string, purpose model.TokenPurpose) error {
	if l.cooldown == nil {
		return nil
	}
	key := fmt.Sprintf("token_cooldown:%s:%s", purpose, userID)
	ok, err := l.cooldown.SetIfAbsent(ctx, key, time.Now().Unix(), l.cfg.ResendCooldown)
	if err != nil {
		// Cooldown is best-effort; an unreachable store never blocks issuance
		l.log.Warn().Err(err).Msg("cooldown store unavailable, skipping resend throttle")
		return nil
	}
	if !ok {
		return ErrResendCooldown
	}
	return nil
}

func (l *TokenLedger) ttlFor(purpose model.TokenPurpose) time.Duration {
	if purpose == model.TokenPurposeReset {
		return l.cfg.ResetTTL
	}
	return l.cfg.VerifyTTL
}

// generateRawToken produces a 256-bit random token as 64 hex characters
func generateRawToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
