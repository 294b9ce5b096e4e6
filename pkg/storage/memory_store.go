package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yanorepuser4/h2o-3/pkg/domain"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore[T Keyed] struct {
	mu     sync.RWMutex
	values map[domain.Key]T
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore[T Keyed]() *MemoryStore[T] {
	return &MemoryStore[T]{
		values: make(map[domain.Key]T),
	}
}

// NewFrameStore creates an in-memory frame store.
func NewFrameStore() *MemoryStore[*domain.Frame] {
	return NewMemoryStore[*domain.Frame]()
}

// Put stores value under its key, replacing any previous value.
func (s *MemoryStore[T]) Put(value T) error {
	key := value.Key()
	if key == "" {
		return fmt.Errorf("cannot store a value without a key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get retrieves the value stored under key.
func (s *MemoryStore[T]) Get(key domain.Key) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Remove deletes key and reports whether it was present.
func (s *MemoryStore[T]) Remove(key domain.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	return true
}

// Len returns the number of stored values.
func (s *MemoryStore[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys returns the stored keys in sorted order.
func (s *MemoryStore[T]) Keys() []domain.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]domain.Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
