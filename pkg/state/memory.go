package state

import (
	"context"
	"sync"
)

// MemoryStore keeps bookmarks in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	bookmarks map[string]Bookmark
	saves     int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookmarks: make(map[string]Bookmark)}
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, stream string) (Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookmarks[stream]
	if !ok {
		StateLoads.WithLabelValues(BackendMemory, "miss").Inc()
		return Bookmark{}, ErrNotFound
	}
	StateLoads.WithLabelValues(BackendMemory, "hit").Inc()
	return b, nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, stream string, bookmark Bookmark) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookmarks[stream] = bookmark
	s.saves++
	StateSaves.WithLabelValues(BackendMemory).Inc()
	return nil
}

// Saves returns the number of Save calls (for testing).
func (s *MemoryStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
