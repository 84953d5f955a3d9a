package planstore

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

type MetricsSnapshot struct {
	Hits         uint64 `json:"hits"`
	Misses       uint64 `json:"misses"`
	OriginReads  uint64 `json:"origin_reads"`
	OriginWrites uint64 `json:"origin_writes"`
	OriginErrors uint64 `json:"origin_errors"`
}

// CachedStore fronts a durable Store with a bounded LRU of recent records.
// Writes go to the origin first; the front is only updated on success.
type CachedStore struct {
	origin Store
	front  *lru.Cache[string, Record]

	hits, misses, originReads, originWrites, originErrors atomic.Uint64
}

func NewCachedStore(origin Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultMemoryRecords
	}
	front, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, front: front}, nil
}

func (s *CachedStore) Save(ctx context.Context, rec Record) error {
	// The origin stamps timestamps; drop the stale copy rather than guess them.
	s.front.Remove(strings.TrimSpace(rec.TraceID))
	s.originWrites.Add(1)
	if err := s.origin.Save(ctx, rec); err != nil {
		s.originErrors.Add(1)
		return err
	}
	return nil
}

func (s *CachedStore) Get(ctx context.Context, traceID string) (Record, error) {
	traceID = strings.TrimSpace(traceID)
	if rec, ok := s.front.Get(traceID); ok {
		s.hits.Add(1)
		return rec, nil
	}
	s.misses.Add(1)
	s.originReads.Add(1)
	rec, err := s.origin.Get(ctx, traceID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.originErrors.Add(1)
		}
		return Record{}, err
	}
	// In-flight runs change; only cache settled records.
	if rec.Status != RunRunning {
		s.front.Add(traceID, rec)
	}
	return rec, nil
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		OriginReads:  s.originReads.Load(),
		OriginWrites: s.originWrites.Load(),
		OriginErrors: s.originErrors.Load(),
	}
}
