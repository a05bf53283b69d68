package blob

import (
	"context"
	"sync"
)

// MemoryStore keeps snapshots in memory for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Save retains a copy of data and returns a memory:// URI.
func (s *MemoryStore) Save(_ context.Context, objectName string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[objectName] = append([]byte(nil), data...)
	return "memory://" + objectName, nil
}

// Get returns a stored object, for tests.
func (s *MemoryStore) Get(objectName string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[objectName]
	return data, ok
}

// Len reports the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
