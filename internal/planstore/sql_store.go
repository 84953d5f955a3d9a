package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tripplanner/internal/sqldb"
)

// SQLStore keeps run records in the trip_plans table.
type SQLStore struct {
	db         *sql.DB
	dialect    sqldb.Dialect
	now        func() time.Time
	schemaOnce sync.Once
	schemaErr  error
}

func NewSQLStore(db *sql.DB, dialect sqldb.Dialect) *SQLStore {
	if dialect == "" {
		dialect = sqldb.Postgres
	}
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db is nil")
	}
	s.schemaOnce.Do(func() {
		ddl := `
CREATE TABLE IF NOT EXISTS trip_plans (
    trace_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    request_json TEXT NOT NULL,
    itinerary_json TEXT NOT NULL DEFAULT '',
    steps_json TEXT NOT NULL DEFAULT '',
    fallback_activated BOOLEAN NOT NULL DEFAULT FALSE,
    execution_time_ms BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trip_plans_user_id ON trip_plans(user_id);
`
		if s.dialect == sqldb.SQLite {
			ddl = `
CREATE TABLE IF NOT EXISTS trip_plans (
    trace_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    request_json TEXT NOT NULL,
    itinerary_json TEXT NOT NULL DEFAULT '',
    steps_json TEXT NOT NULL DEFAULT '',
    fallback_activated INTEGER NOT NULL DEFAULT 0,
    execution_time_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trip_plans_user_id ON trip_plans(user_id);
`
		}
		_, s.schemaErr = s.db.ExecContext(ctx, ddl)
	})
	return s.schemaErr
}

func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	rec.TraceID = strings.TrimSpace(rec.TraceID)
	if rec.TraceID == "" {
		return fmt.Errorf("trace_id is required")
	}
	stamp(&rec, s.now())

	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return err
	}
	itJSON := []byte{}
	if rec.Itinerary != nil {
		if itJSON, err = json.Marshal(rec.Itinerary); err != nil {
			return err
		}
	}
	stepsJSON := []byte{}
	if len(rec.Steps) > 0 {
		if stepsJSON, err = json.Marshal(rec.Steps); err != nil {
			return err
		}
	}
	_, err = s.db.ExecContext(ctx, s.dialect.Bind(`
INSERT INTO trip_plans (trace_id, user_id, status, request_json, itinerary_json, steps_json, fallback_activated, execution_time_ms, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (trace_id)
DO UPDATE SET status=EXCLUDED.status, itinerary_json=EXCLUDED.itinerary_json, steps_json=EXCLUDED.steps_json,
    fallback_activated=EXCLUDED.fallback_activated, execution_time_ms=EXCLUDED.execution_time_ms,
    error=EXCLUDED.error, updated_at=EXCLUDED.updated_at
`), rec.TraceID, rec.UserID, string(rec.Status), string(reqJSON), string(itJSON), string(stepsJSON),
		rec.FallbackActivated, rec.ExecutionTimeMs, rec.Error, s.dialect.TimeArg(rec.CreatedAt), s.dialect.TimeArg(rec.UpdatedAt))
	return err
}

func (s *SQLStore) Get(ctx context.Context, traceID string) (Record, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, err
	}
	var (
		rec                        Record
		status                     string
		reqJSON, itJSON, stepsJSON string
	)
	row := s.db.QueryRowContext(ctx, s.dialect.Bind(`
SELECT trace_id, user_id, status, request_json, itinerary_json, steps_json, fallback_activated, execution_time_ms, error, created_at, updated_at
FROM trip_plans WHERE trace_id=$1
`), strings.TrimSpace(traceID))
	dest := []any{&rec.TraceID, &rec.UserID, &status, &reqJSON, &itJSON, &stepsJSON, &rec.FallbackActivated, &rec.ExecutionTimeMs, &rec.Error}
	var err error
	if s.dialect == sqldb.SQLite {
		var created, updated int64
		err = row.Scan(append(dest, &created, &updated)...)
		rec.CreatedAt, rec.UpdatedAt = time.UnixMilli(created), time.UnixMilli(updated)
	} else {
		err = row.Scan(append(dest, &rec.CreatedAt, &rec.UpdatedAt)...)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	rec.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return Record{}, fmt.Errorf("decode request of %s: %w", rec.TraceID, err)
	}
	if itJSON != "" {
		if err := json.Unmarshal([]byte(itJSON), &rec.Itinerary); err != nil {
			return Record{}, fmt.Errorf("decode itinerary of %s: %w", rec.TraceID, err)
		}
	}
	if stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &rec.Steps); err != nil {
			return Record{}, fmt.Errorf("decode steps of %s: %w", rec.TraceID, err)
		}
	}
	return rec, nil
}
