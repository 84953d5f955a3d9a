package planstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemoryRecords = 1024

// MemoryStore is a bounded in-process Store. The oldest records are evicted
// first once the bound is reached.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
	now   func() time.Time
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemoryRecords
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: c, now: time.Now}, nil
}

// Records are held encoded so callers never share maps or itineraries with the store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	rec.TraceID = strings.TrimSpace(rec.TraceID)
	if prev, ok := s.cache.Peek(rec.TraceID); ok {
		var old Record
		if json.Unmarshal(prev, &old) == nil && rec.CreatedAt.IsZero() {
			rec.CreatedAt = old.CreatedAt
		}
	}
	stamp(&rec, s.now())
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.cache.Add(rec.TraceID, raw)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, traceID string) (Record, error) {
	raw, ok := s.cache.Get(strings.TrimSpace(traceID))
	if !ok {
		return Record{}, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *MemoryStore) Len() int { return s.cache.Len() }
