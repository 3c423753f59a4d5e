package keystore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Codes do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	codes map[string]string // code -> platform
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]string)}
}

func (s *MemoryStore) Exists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *MemoryStore) Insert(ctx context.Context, code, platform string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code]; ok {
		return Duplicate, nil
	}
	s.codes[code] = platform
	return Inserted, nil
}

// List returns the codes sorted by value.
func (s *MemoryStore) List(ctx context.Context) ([]Code, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Code, 0, len(s.codes))
	for v, p := range s.codes {
		out = append(out, Code{Value: v, Platform: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
