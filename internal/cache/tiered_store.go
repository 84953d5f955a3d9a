package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	memcache "tripplanner/internal/cache/memory"
	"tripplanner/internal/tracelog"
)

// Origin is a durable backend that tracks absolute expiry per entry.
type Origin interface {
	Load(ctx context.Context, key string) ([]byte, time.Time, error)
	Save(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Invalidator
}

type TieredConfig struct {
	MaxEntries int
	MaxBytes   int
}

func DefaultTieredConfig() TieredConfig {
	return TieredConfig{
		MaxEntries: 4096,
		MaxBytes:   32 * 1024 * 1024, // 32MiB
	}
}

type MetricsSnapshot struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	OriginReads  uint64 `json:"origin_reads"`
	OriginWrites uint64 `json:"origin_writes"`
	OriginErrors uint64 `json:"origin_errors"`
}

type metrics struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	originReads  atomic.Uint64
	originWrites atomic.Uint64
	originErrors atomic.Uint64
}

// TieredStore is a read-through Store: an in-process LRU in front of a durable
// origin. Origin errors degrade to memory-only caching.
type TieredStore struct {
	origin  Origin
	front   *memcache.LRUTTL[string, []byte]
	now     func() time.Time
	metrics metrics
}

func NewTieredStore(origin Origin, cfg TieredConfig) *TieredStore {
	def := DefaultTieredConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.MaxBytes < 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	return &TieredStore{
		origin: origin,
		front:  memcache.NewLRUTTL[string, []byte](cfg.MaxEntries, cfg.MaxBytes, DefaultPOITTL),
		now:    time.Now,
	}
}

func (s *TieredStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if raw, ok := s.front.Get(key); ok {
		s.metrics.hits.Add(1)
		return append([]byte(nil), raw...), true
	}
	s.metrics.originReads.Add(1)
	raw, expiresAt, err := s.origin.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.metrics.originErrors.Add(1)
			tracelog.Logger(ctx).Warn("cache origin read failed", "key", key, "error", err)
		}
		s.metrics.misses.Add(1)
		return nil, false
	}
	s.metrics.hits.Add(1)
	copied := append([]byte(nil), raw...)
	if ttl := expiresAt.Sub(s.now()); ttl > 0 {
		s.front.Set(key, copied, len(copied), ttl)
	}
	return append([]byte(nil), copied...), true
}

// Set always populates the memory tier; it reports whether the origin write succeeded.
func (s *TieredStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultPOITTL
	}
	copied := append([]byte(nil), value...)
	s.front.Set(key, copied, len(copied), ttl)

	s.metrics.originWrites.Add(1)
	if err := s.origin.Save(ctx, key, copied, s.now().Add(ttl)); err != nil {
		s.metrics.originErrors.Add(1)
		tracelog.Logger(ctx).Warn("cache origin write failed", "key", key, "error", err)
		return false
	}
	return true
}

// Delete drops key from both tiers.
func (s *TieredStore) Delete(ctx context.Context, key string) (bool, error) {
	front := s.front.Delete(key)
	found, err := s.origin.Delete(ctx, key)
	if err != nil {
		s.metrics.originErrors.Add(1)
		return front, err
	}
	return front || found, nil
}

// Clear drops prefix from both tiers and reports the origin's count, or the
// memory tier's when the origin fails.
func (s *TieredStore) Clear(ctx context.Context, prefix string) (int, error) {
	front := s.front.DeleteFunc(func(key string) bool { return underPrefix(key, prefix) })
	n, err := s.origin.Clear(ctx, prefix)
	if err != nil {
		s.metrics.originErrors.Add(1)
		return front, err
	}
	return max(n, front), nil
}

// Metrics returns the counters since the store was built.
func (s *TieredStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:         s.metrics.hits.Load(),
		Misses:       s.metrics.misses.Load(),
		OriginReads:  s.metrics.originReads.Load(),
		OriginWrites: s.metrics.originWrites.Load(),
		OriginErrors: s.metrics.originErrors.Load(),
	}
}
