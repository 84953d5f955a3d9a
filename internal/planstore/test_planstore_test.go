package planstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/planning"
	"tripplanner/internal/sqldb"
	"tripplanner/internal/trip"
)

func sampleState() *planning.State {
	req := trip.Request{City: "北京", StartDate: "2025-06-01", EndDate: "2025-06-02", TravelDays: 2, Preferences: []string{"历史"}}
	st := planning.NewState("trace-1", "user-7", req)
	st.Merge(planning.Succeeded(planning.StepAttractions, 12*time.Millisecond, planning.AttractionsPayload{}))
	st.Merge(planning.Failed(planning.StepWeather, 3*time.Millisecond, errors.New("weather offline"), planning.WeatherPayload{}))
	st.Merge(planning.Succeeded(planning.StepSynthesis, time.Millisecond, planning.SynthesisPayload{
		Itinerary: &trip.Itinerary{City: "北京", StartDate: "2025-06-01", EndDate: "2025-06-02", Budget: trip.Budget{TotalMeals: 10, Total: 10}},
		Fallback:  true,
	}))
	st.ExecutionTimeMs = 42
	return st
}

func TestFromState(t *testing.T) {
	rec := FromState(sampleState(), RunCompleted)
	assert.Equal(t, "trace-1", rec.TraceID)
	assert.Equal(t, "user-7", rec.UserID)
	assert.True(t, rec.FallbackActivated)
	assert.Equal(t, int64(42), rec.ExecutionTimeMs)
	assert.Equal(t, StepRecord{Status: planning.StatusFailed, ElapsedMs: 3, Error: "weather offline"}, rec.Steps[planning.StepWeather])
	assert.Equal(t, StepRecord{Status: planning.StatusCompleted, ElapsedMs: 12}, rec.Steps[planning.StepAttractions])
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore(2)
	require.NoError(t, err)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, Record{TraceID: "a", Status: RunRunning}))
	first, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, FromState(sampleState(), RunCompleted)))
	require.NoError(t, s.Save(ctx, Record{TraceID: "a", Status: RunCompleted}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	// Mutating a returned record does not leak into the store.
	rec, err := s.Get(ctx, "trace-1")
	require.NoError(t, err)
	rec.Steps[planning.StepWeather] = StepRecord{}
	again, err := s.Get(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, planning.StatusFailed, again.Steps[planning.StepWeather].Status)

	require.NoError(t, s.Save(ctx, Record{TraceID: "c"}))
	assert.Equal(t, 2, s.Len())
}

func TestSQLStoreSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := sqldb.Open(ctx, sqldb.SQLite, filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLStore(db, sqldb.SQLite)
	created := time.UnixMilli(time.Now().UnixMilli())
	s.now = func() time.Time { return created }

	_, err = s.Get(ctx, "trace-1")
	assert.ErrorIs(t, err, ErrNotFound)

	st := sampleState()
	require.NoError(t, s.Save(ctx, Record{TraceID: st.TraceID, UserID: st.UserID, Status: RunRunning, Request: st.Request}))
	running, err := s.Get(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, RunRunning, running.Status)
	assert.Nil(t, running.Itinerary)
	assert.Empty(t, running.Steps)

	s.now = func() time.Time { return created.Add(time.Second) }
	require.NoError(t, s.Save(ctx, FromState(st, RunCompleted)))

	got, err := s.Get(ctx, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, got.Status)
	assert.Equal(t, "user-7", got.UserID)
	assert.Equal(t, st.Request, got.Request)
	require.NotNil(t, got.Itinerary)
	assert.Equal(t, float64(10), got.Itinerary.Budget.Total)
	assert.True(t, got.FallbackActivated)
	assert.Equal(t, int64(42), got.ExecutionTimeMs)
	assert.Equal(t, "weather offline", got.Steps[planning.StepWeather].Error)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.True(t, created.Add(time.Second).Equal(got.UpdatedAt))
}

type countingStore struct {
	mu      sync.Mutex
	inner   *MemoryStore
	gets    int
	failGet bool
}

func (c *countingStore) Save(ctx context.Context, rec Record) error { return c.inner.Save(ctx, rec) }
func (c *countingStore) Get(ctx context.Context, id string) (Record, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	if c.failGet {
		return Record{}, errors.New("db down")
	}
	return c.inner.Get(ctx, id)
}

func TestCachedStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	inner, err := NewMemoryStore(8)
	require.NoError(t, err)
	origin := &countingStore{inner: inner}
	s, err := NewCachedStore(origin, 8)
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, Record{TraceID: "run", Status: RunRunning}))
	_, _ = s.Get(ctx, "run")
	_, _ = s.Get(ctx, "run")
	assert.Equal(t, 2, origin.gets, "running records are not cached")

	require.NoError(t, s.Save(ctx, Record{TraceID: "run", Status: RunCompleted}))
	for i := 0; i < 3; i++ {
		rec, err := s.Get(ctx, "run")
		require.NoError(t, err)
		assert.Equal(t, RunCompleted, rec.Status)
	}
	assert.Equal(t, 3, origin.gets)

	m := s.Metrics()
	assert.EqualValues(t, 2, m.Hits)
	assert.EqualValues(t, 3, m.Misses)
	assert.EqualValues(t, 2, m.OriginWrites)

	origin.failGet = true
	_, err = s.Get(ctx, "other")
	assert.Error(t, err)
	assert.EqualValues(t, 1, s.Metrics().OriginErrors)
}

func TestS3ArchiveConfig(t *testing.T) {
	_, err := NewS3Archive(S3Config{})
	assert.Error(t, err)
	_, err = NewS3Archive(S3Config{Endpoint: "localhost:9000", Bucket: "plans"})
	assert.Error(t, err)

	a, err := NewS3Archive(S3Config{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "plans"})
	require.NoError(t, err)
	assert.Equal(t, "itineraries/abc.json", a.objectKey("abc"))
	assert.Equal(t, "itineraries/a_b.json", a.objectKey("a/b"))
	assert.False(t, S3Config{Bucket: "x"}.Enabled())
}
