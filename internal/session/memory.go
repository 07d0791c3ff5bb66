// Package session persists one conversation History per session key.
package session

import (
	"context"
	"sync"

	"codeqa/internal/domain"
)

// MemoryStore keeps histories in process memory. Histories are copied on
// the way in and out so callers never share backing arrays with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.History
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.History)}
}

func (s *MemoryStore) Load(ctx context.Context, key string) (domain.History, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[key]
	if !ok {
		return nil, false, nil
	}
	return h.Clone(), true, nil
}

func (s *MemoryStore) Save(ctx context.Context, key string, h domain.History) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[key] = h.Clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	delete(s.sessions, key)
	return ok, nil
}

func (s *MemoryStore) Close() error { return nil }
