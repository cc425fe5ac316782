package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowEntry struct {
	start time.Time
	count int
}

// MemoryStore is a mutex-guarded in-process window store. Suitable for a
// single replica; use the Redis store when running more than one.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*windowEntry), now: time.Now}
}

func (s *MemoryStore) Incr(_ context.Context, clientID string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[clientID]
	if !ok || now.Sub(e.start) >= window {
		e = &windowEntry{start: now}
		s.entries[clientID] = e
	}
	e.count++
	return e.count, nil
}
