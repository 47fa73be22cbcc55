package antispam

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the ledger in process memory.
type MemoryStore struct {
	mu         sync.Mutex
	lastPushed map[string]time.Time
	pending    map[string]time.Time
	abandoned  map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lastPushed: make(map[string]time.Time),
		pending:    make(map[string]time.Time),
		abandoned:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) LastPushed(_ context.Context, fp string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastPushed[fp]
	return t, ok, nil
}

func (s *MemoryStore) IsAbandoned(_ context.Context, fp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.abandoned[fp]
	return ok, nil
}

func (s *MemoryStore) Pending(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.pending))
	for fp, t := range s.pending {
		out[fp] = t
	}
	return out, nil
}

func (s *MemoryStore) Record(_ context.Context, fp string, at time.Time, cooldown time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Entries past their cooldown no longer suppress anything.
	for k, t := range s.lastPushed {
		if at.Sub(t) >= cooldown {
			delete(s.lastPushed, k)
		}
	}
	s.lastPushed[fp] = at
	s.pending[fp] = at
	return nil
}

func (s *MemoryStore) ClearPending(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, fp)
	return nil
}

func (s *MemoryStore) Abandon(_ context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, fp)
	s.abandoned[fp] = struct{}{}
	return nil
}
