package cache

import (
	"context"
	"time"

	memcache "tripplanner/internal/cache/memory"
)

// MemoryStore is a process-local Store backed by an LRU with per-entry TTL.
type MemoryStore struct {
	lru *memcache.LRUTTL[string, []byte]
}

func NewMemoryStore(maxEntries, maxBytes int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemoryStore{lru: memcache.NewLRUTTL[string, []byte](maxEntries, maxBytes, DefaultPOITTL)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	raw, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), raw...), true
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	copied := append([]byte(nil), value...)
	s.lru.Set(key, copied, len(copied), ttl)
	return true
}

func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	return s.lru.Delete(key), nil
}

func (s *MemoryStore) Clear(_ context.Context, prefix string) (int, error) {
	return s.lru.DeleteFunc(func(key string) bool { return underPrefix(key, prefix) }), nil
}

// Len returns the number of cached entries.
func (s *MemoryStore) Len() int { return s.lru.Len() }

// SetClock replaces the time source. Intended for tests.
func (s *MemoryStore) SetClock(now func() time.Time) { s.lru.SetClock(now) }
