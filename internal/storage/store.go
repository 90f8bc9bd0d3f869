package storage

import (
	"fmt"
	"sort"
	"sync"
)

// Store defines the interface for a node's key-value storage.
type Store interface {
	// Get retrieves a copy of the value stored under key.
	Get(key string) ([]byte, bool)
	// Has reports whether key is stored.
	Has(key string) bool
	// Put stores a copy of value. Returns true if an existing value was overwritten.
	Put(key string, value []byte) bool
	// Delete removes a key. Returns an error if it is not stored.
	Delete(key string) error
	// Len returns the number of stored keys.
	Len() int
	// Keys returns the stored keys in sorted order.
	Keys() []string
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	nodeID string
}

// NewInMemoryStore creates a new in-memory store owned by nodeID.
func NewInMemoryStore(nodeID string) *InMemoryStore {
	return &InMemoryStore{
		data:   make(map[string][]byte),
		nodeID: nodeID,
	}
}

// Get retrieves a value by key.
func (s *InMemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, exists := s.data[key]
	if !exists {
		return nil, false
	}
	// Return a copy to avoid external modifications
	return append([]byte{}, v...), true
}

// Has reports whether key is stored.
func (s *InMemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[key]
	return exists
}

// Put stores a value.
func (s *InMemoryStore) Put(key string, value []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.data[key]
	s.data[key] = append([]byte{}, value...)
	return exists
}

// Delete removes a key.
func (s *InMemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists {
		return fmt.Errorf("could not delete key %q on %s: not found", key, s.nodeID)
	}
	delete(s.data, key)
	return nil
}

// Len returns the number of stored keys.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Keys returns the stored keys in sorted order.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
