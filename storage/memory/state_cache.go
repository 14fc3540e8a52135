package memorystore

import (
	"context"
	"sync"
	"time"

	oidckit "github.com/PaulFidika/ocidkit/oidc"
)

// StateCache is an in-memory implementation of oidckit.StateCache with TTL.
type StateCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	data   map[string]item
	closed chan struct{}
	once   sync.Once
}

type item struct {
	v   oidckit.StateData
	exp time.Time
}

// NewStateCache creates a new in-memory state cache with the given TTL.
// If ttl <= 0, a default of 10 minutes is used.
// Starts a background goroutine to clean up expired entries every minute.
func NewStateCache(ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := &StateCache{ttl: ttl, now: time.Now, data: make(map[string]item), closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

// WithClock replaces time.Now, for tests.
func (s *StateCache) WithClock(now func() time.Time) *StateCache {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *StateCache) Put(_ context.Context, state string, v oidckit.StateData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[state] = item{v: v, exp: s.now().Add(s.ttl)}
	return nil
}

func (s *StateCache) Get(_ context.Context, state string) (oidckit.StateData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[state]
	if !ok {
		return oidckit.StateData{}, false, nil
	}
	if s.now().After(it.exp) {
		delete(s.data, state)
		return oidckit.StateData{}, false, nil
	}
	return it.v, true, nil
}

func (s *StateCache) Take(_ context.Context, state string) (oidckit.StateData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[state]
	if !ok {
		return oidckit.StateData{}, false, nil
	}
	delete(s.data, state)
	if s.now().After(it.exp) {
		return oidckit.StateData{}, false, nil
	}
	return it.v, true, nil
}

func (s *StateCache) Del(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, state)
	return nil
}

func (s *StateCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.closed:
			return
		}
	}
}

func (s *StateCache) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.data {
		if now.After(v.exp) {
			delete(s.data, k)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call more than once.
func (s *StateCache) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

var _ oidckit.StateCache = (*StateCache)(nil)
