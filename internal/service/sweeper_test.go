package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/attempt"
	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

func TestSweepRemovesExpiredTokens(t *testing.T) {
	store := newFakeTokenStore()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.Create(ctx, &model.SingleUseToken{
		ID:        "tok_expired",
		UserID:    "usr_1",
		Purpose:   model.TokenPurposeReset,
		TokenHash: "aa",
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}))
	require.NoError(t, store.Create(ctx, &model.SingleUseToken{
		ID:        "tok_live",
		UserID:    "usr_1",
		Purpose:   model.TokenPurposeReset,
		TokenHash: "bb",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}))

	tracker := attempt.NewTracker(attempt.NewMemoryStore(), config.LoginThrottleConfig{}, testLogger())
	s := NewSweeper(store, tracker, time.Minute, testLogger())

	s.Sweep(ctx)

	assert.Equal(t, 1, store.unusedCount("usr_1", model.TokenPurposeReset))
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := NewSweeper(newFakeTokenStore(), nil, time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on context cancellation")
	}
}
