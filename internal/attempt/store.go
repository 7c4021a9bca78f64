package attempt

import (
	"context"
	"sync"
	"time"
)

// Store counts consecutive login failures per key. Implementations must be
// safe for concurrent use; last-write-wins is acceptable since the counter
// is advisory rate limiting, not a security boundary by itself.
type Store interface {
	// Increment adds one failure to the key, starting the TTL on first
	// write, and returns the new count.
	Increment(ctx context.Context, key string, ttl time.Duration) (int, error)
	// Get returns the current failure count, zero if the key is absent.
	Get(ctx context.Context, key string) (int, error)
	// Reset clears the key.
	Reset(ctx context.Context, key string) error
}

type memoryEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryStore is an in-process Store backed by a mutex-guarded map.
// Used standalone when no external cache is configured and as the
// degradation fallback when the networked store is unreachable.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Increment adds one failure to the key and returns the new count
func (s *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &memoryEntry{expiresAt: now.Add(ttl)}
		s.entries[key] = entry
	}
	entry.count++
	return entry.count, nil
}

// Get returns the current failure count for the key
func (s *MemoryStore) Get(_ context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return 0, nil
	}
	return entry.count, nil
}

// Reset clears the key
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Purge drops expired entries. Called periodically by the sweeper so the
// map does not grow without bound.
func (s *MemoryStore) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
