package ratelimit

import (
	"context"
	"sync"
)

// MemoryStore keeps buckets in process memory for the process lifetime.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]Bucket
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]Bucket)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Bucket, bool, error) {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	return b, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, b Bucket) error {
	s.mu.Lock()
	s.buckets[key] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Len(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets), nil
}

// Reset drops every bucket.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	s.buckets = make(map[string]Bucket)
	s.mu.Unlock()
}
