// Package counter provides the shared counter-store abstraction behind the
// credit gate and the rate limiter. The in-memory store is correct for a
// single process only; multi-process deployments must use the Redis store so
// counters stay consistent across replicas.
package counter

import (
	"context"
	"sync"
	"time"
)

// Store is a keyed counter with per-key expiry.
type Store interface {
	// Incr increments the counter by one and returns the new value. On the
	// first increment of a key the ttl is armed; zero ttl means no expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Add increments the counter by n with the same expiry semantics.
	Add(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)

	// Peek returns the current value without side effects.
	Peek(ctx context.Context, key string) (int64, error)

	// Reset deletes the counter.
	Reset(ctx context.Context, key string) error
}

type entry struct {
	count   int64
	expires time.Time
}

// InMemoryStore is a mutex-guarded map store for single-process deployments
// and tests.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// NewInMemoryStore creates an empty in-memory counter store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// SetClock overrides the time source; mainly useful for tests.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Incr increments the counter by one, arming the expiry on first increment.
func (s *InMemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return s.Add(ctx, key, 1, ttl)
}

// Add increments the counter by n, arming the expiry on first increment.
func (s *InMemoryStore) Add(_ context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.live(key)
	if e == nil {
		e = &entry{}
		if ttl > 0 {
			e.expires = s.now().Add(ttl)
		}
		s.entries[key] = e
	}
	e.count += n
	return e.count, nil
}

// Peek returns the current counter value.
func (s *InMemoryStore) Peek(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e := s.live(key); e != nil {
		return e.count, nil
	}
	return 0, nil
}

// Reset deletes the counter.
func (s *InMemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// live returns the entry for key, dropping it if expired. Caller holds mu.
func (s *InMemoryStore) live(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}
