package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore implements Store with per-key timestamp windows. Suitable
// for single-process deployments; distributed setups use RedisStore.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	// now is swappable for tests.
	now func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-window)

	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.windows[key] = kept
		return &Result{
			Allowed: false,
			Limit:   limit,
			ResetAt: kept[0].Add(window),
		}, nil
	}

	kept = append(kept, now)
	s.windows[key] = kept
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(kept),
		ResetAt:   kept[0].Add(window),
	}, nil
}

func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}
