package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

func newTestLedger(cooldown CooldownStore) (*TokenLedger, *fakeTokenStore) {
	store := newFakeTokenStore()
	cfg := testConfig().Security.Tokens
	return NewTokenLedger(store, cooldown, cfg, testLogger()), store
}

func setupCooldownRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &database.Redis{Client: client}, mr
}

func TestLedgerIssueAndConsume(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	ctx := context.Background()

	raw, token, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "203.0.113.7", "test-agent")
	require.NoError(t, err)
	require.Len(t, raw, 64)

	// only the hash is stored
	assert.NotEqual(t, raw, token.TokenHash)
	assert.Equal(t, auth.HashToken(raw), token.TokenHash)
	assert.Equal(t, "203.0.113.7", token.RequestIP)

	consumed, err := ledger.Consume(ctx, raw, model.TokenPurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", consumed.UserID)

	// second redemption loses
	_, err = ledger.Consume(ctx, raw, model.TokenPurposeVerification)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestLedgerConsumeWrongPurpose(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	ctx := context.Background()

	raw, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	require.NoError(t, err)

	// a verification token cannot reset a password
	_, err = ledger.Consume(ctx, raw, model.TokenPurposeReset)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestLedgerConsumeExpired(t *testing.T) {
	ledger, store := newTestLedger(nil)
	ctx := context.Background()

	raw, token, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	require.NoError(t, err)

	store.expire(token.ID)

	_, err = ledger.Consume(ctx, raw, model.TokenPurposeReset)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestLedgerIssueInvalidatesSiblings(t *testing.T) {
	ledger, store := newTestLedger(nil)
	ctx := context.Background()

	first, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	require.NoError(t, err)
	second, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	require.NoError(t, err)

	assert.Equal(t, 1, store.unusedCount("usr_1", model.TokenPurposeReset))

	_, err = ledger.Consume(ctx, first, model.TokenPurposeReset)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = ledger.Consume(ctx, second, model.TokenPurposeReset)
	assert.NoError(t, err)
}

func TestLedgerIssueLeavesOtherPurposesAlone(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	ctx := context.Background()

	verifyRaw, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	require.NoError(t, err)

	_, _, err = ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	require.NoError(t, err)

	// the reset issuance did not touch the verification token
	_, err = ledger.Consume(ctx, verifyRaw, model.TokenPurposeVerification)
	assert.NoError(t, err)
}

func TestLedgerConsumeInvalidatesSiblings(t *testing.T) {
	ledger, store := newTestLedger(nil)
	ctx := context.Background()

	// two live tokens inserted directly, bypassing issuance invalidation
	now := time.Now()
	stale := &model.SingleUseToken{
		ID:        "tok_stale",
		UserID:    "usr_1",
		Purpose:   model.TokenPurposeReset,
		TokenHash: auth.HashToken("stale-raw"),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, stale))

	raw, _, err := ledger.Issue(ctx, "usr_2", model.TokenPurposeReset, "", "")
	require.NoError(t, err)
	live := &model.SingleUseToken{
		ID:        "tok_live",
		UserID:    "usr_1",
		Purpose:   model.TokenPurposeReset,
		TokenHash: auth.HashToken("live-raw"),
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, live))

	_, err = ledger.Consume(ctx, "live-raw", model.TokenPurposeReset)
	require.NoError(t, err)

	// consuming one stamped every sibling of the same user and purpose
	assert.Equal(t, 0, store.unusedCount("usr_1", model.TokenPurposeReset))
	// other users' tokens stay live
	_, err = ledger.Consume(ctx, raw, model.TokenPurposeReset)
	assert.NoError(t, err)
}

func TestLedgerIssueHourlyCap(t *testing.T) {
	ledger, _ := newTestLedger(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
		require.NoError(t, err)
	}

	// the fourth request inside the window is refused even without a
	// cooldown store
	_, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	assert.ErrorIs(t, err, ErrResendCooldown)

	// the cap is per user and per purpose
	_, _, err = ledger.Issue(ctx, "usr_2", model.TokenPurposeReset, "", "")
	assert.NoError(t, err)
	_, _, err = ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	assert.NoError(t, err)
}

func TestLedgerResendCooldown(t *testing.T) {
	rdb, mr := setupCooldownRedis(t)
	ledger, _ := newTestLedger(rdb)
	ctx := context.Background()

	_, _, err := ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	require.NoError(t, err)

	// immediate reissue is throttled
	_, _, err = ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	assert.ErrorIs(t, err, ErrResendCooldown)

	// other users and purposes are unaffected
	_, _, err = ledger.Issue(ctx, "usr_2", model.TokenPurposeVerification, "", "")
	assert.NoError(t, err)
	_, _, err = ledger.Issue(ctx, "usr_1", model.TokenPurposeReset, "", "")
	assert.NoError(t, err)

	// the window passes
	mr.FastForward(2 * time.Minute)
	_, _, err = ledger.Issue(ctx, "usr_1", model.TokenPurposeVerification, "", "")
	assert.NoError(t, err)
}

func TestLedgerCooldownStoreDownDoesNotBlock(t *testing.T) {
	rdb, mr := setupCooldownRedis(t)
	ledger, _ := newTestLedger(rdb)
	mr.Close()

	_, _, err := ledger.Issue(context.Background(), "usr_1", model.TokenPurposeVerification, "", "")
	assert.NoError(t, err)
}
