package attempt

import (
	"context"
	"strings"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
)

// State describes the escalation state of a (email, origin) pair
type State string

const (
	// StateClear means no recent failures
	StateClear State = "clear"
	// StateWarming means failures below the captcha threshold
	StateWarming State = "warming"
	// StateCaptchaRequired means a human-verification challenge must pass
	// before any password comparison is attempted
	StateCaptchaRequired State = "captcha_required"
)

// Tracker counts consecutive login failures per (email, origin) pair and
// escalates to a CAPTCHA requirement at the configured threshold. When the
// primary store errors, the tracker degrades to an in-process fallback so
// an unreachable rate-limit backend never blocks authentication.
type Tracker struct {
	store     Store
	fallback  *MemoryStore
	threshold int
	ttl       time.Duration
	log       *logger.Logger
}

// NewTracker creates a new Tracker around the given store
func NewTracker(store Store, cfg config.LoginThrottleConfig, log *logger.Logger) *Tracker {
	threshold := cfg.CaptchaThreshold
	if threshold <= 0 {
		threshold = 5
	}
	ttl := cfg.AttemptTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Tracker{
		store:     store,
		fallback:  NewMemoryStore(),
		threshold: threshold,
		ttl:       ttl,
		log:       log.WithComponent("attempt_tracker"),
	}
}

// Key builds the tracking key from a normalized email and origin address.
// Keying by (email, origin) follows the original behavior; under NAT or a
// shared proxy this conflates unrelated users into one bucket.
func Key(email, origin string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + origin
}

// State returns the current escalation state for the key
func (t *Tracker) State(ctx context.Context, key string) State {
	count, err := t.store.Get(ctx, key)
	if err != nil {
		t.log.Warn().Err(err).Msg("attempt store unavailable, using in-process fallback")
		count, _ = t.fallback.Get(ctx, key)
	}
	return t.stateFor(count)
}

// RecordFailure registers one failed password check and returns the
// resulting state
func (t *Tracker) RecordFailure(ctx context.Context, key string) State {
	count, err := t.store.Increment(ctx, key, t.ttl)
	if err != nil {
		t.log.Warn().Err(err).Msg("attempt store unavailable, using in-process fallback")
		count, _ = t.fallback.Increment(ctx, key, t.ttl)
	}
	state := t.stateFor(count)
	if state == StateCaptchaRequired {
		t.log.Warn().Str("key", key).Int("failures", count).Msg("captcha escalation threshold reached")
	}
	return state
}

// Clear resets the counter after a successful authentication
func (t *Tracker) Clear(ctx context.Context, key string) {
	if err := t.store.Reset(ctx, key); err != nil {
		t.log.Warn().Err(err).Msg("failed to reset attempt counter")
	}
	_ = t.fallback.Reset(ctx, key)
}

// PurgeFallback drops expired fallback entries; called by the sweeper
func (t *Tracker) PurgeFallback() {
	t.fallback.Purge()
}

func (t *Tracker) stateFor(count int) State {
	switch {
	case count >= t.threshold:
		return StateCaptchaRequired
	case count > 0:
		return StateWarming
	default:
		return StateClear
	}
}
