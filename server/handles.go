package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chazu/loupe/pkg/jvm"
)

// handle is a server-side reference to a debuggee object.
type handle struct {
	id       string
	value    jvm.Value
	class    string
	display  string
	created  time.Time
	lastUsed time.Time
}

// HandleStore maps opaque string IDs to debuggee object references so
// clients can refer back to evaluation results. Stored values hold their own
// reference; releasing a handle releases the reference.
type HandleStore struct {
	mu      sync.RWMutex
	handles map[string]*handle
	nextID  atomic.Uint64
}

// NewHandleStore creates a new handle store.
func NewHandleStore() *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
	}
}

// Create registers a value and returns an opaque handle ID. The store takes
// its own reference; the caller keeps ownership of value.
func (s *HandleStore) Create(value jvm.Value, class, display string) string {
	id := fmt.Sprintf("h-%d", s.nextID.Add(1))

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.handles[id] = &handle{
		id:       id,
		value:    value.Copy(),
		class:    class,
		display:  display,
		created:  now,
		lastUsed: now,
	}
	return id
}

// Lookup retrieves the value for a handle. The returned value stays owned by
// the store; callers needing it past the next Release must Copy it.
func (s *HandleStore) Lookup(id string) (jvm.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handles[id]
	if !ok {
		return jvm.Null(), false
	}
	h.lastUsed = time.Now()
	return h.value, true
}

// Release removes a handle and drops its object reference.
func (s *HandleStore) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return
	}
	h.value.Release()
	delete(s.handles, id)
}

// ReleaseAll drops every handle, e.g. when the debuggee resumes.
func (s *HandleStore) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, h := range s.handles {
		h.value.Release()
		delete(s.handles, id)
	}
}

// Sweep removes handles that haven't been accessed within the TTL.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl)
	removed := 0
	for id, h := range s.handles {
		if h.lastUsed.Before(cutoff) {
			h.value.Release()
			delete(s.handles, id)
			removed++
		}
	}
	return removed
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
