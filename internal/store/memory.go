package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Used for development and
// tests; state does not survive a restart.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.data[key] = cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, found := s.data[key]
	next, err := fn(old, found)
	if err != nil {
		return err
	}
	s.data[key] = next
	return nil
}
