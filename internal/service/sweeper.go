package service

import (
	"context"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/attempt"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
)

// ExpiredTokenStore is the cleanup slice of token persistence
type ExpiredTokenStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically removes expired single-use tokens and purges the
// attempt tracker's in-process fallback. Cleanup is commutative with live
// issuance and consumption, so it runs without coordination.
type Sweeper struct {
	tokens   ExpiredTokenStore
	tracker  *attempt.Tracker
	interval time.Duration
	log      *logger.Logger
}

// NewSweeper creates a new Sweeper
func NewSweeper(tokens ExpiredTokenStore, tracker *attempt.Tracker, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		tokens:   tokens,
		tracker:  tracker,
		interval: interval,
		log:      log.WithComponent("sweeper"),
	}
}

// Run sweeps on the configured interval until the context is canceled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass
func (s *Sweeper) Sweep(ctx context.Context) {
	removed, err := s.tokens.CleanupExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to cleanup expired tokens")
	} else if removed > 0 {
		s.log.Info().Int64("removed", removed).Msg("expired tokens cleaned up")
	}

	if s.tracker != nil {
		s.tracker.PurgeFallback()
	}
}
