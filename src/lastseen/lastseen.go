// Package lastseen records when each user's last connection closed.
package lastseen

import (
	"context"
	"sync"
	"time"
)

// Store records and returns last-seen times.
type Store interface {
	// Touch records t as the user's last-seen time.
	Touch(ctx context.Context, userID string, t time.Time) error
	// Get returns the last-seen time, and false if none is recorded.
	Get(ctx context.Context, userID string) (time.Time, bool, error)
}

// MemoryStore keeps last-seen times in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	seen map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]time.Time)}
}

// Touch records t unless a later time is already stored.
func (s *MemoryStore) Touch(_ context.Context, userID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.seen[userID]; ok && prev.After(t) {
		return nil
	}
	s.seen[userID] = t.UTC()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.seen[userID]
	return t, ok, nil
}
