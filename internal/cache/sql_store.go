package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"tripplanner/internal/sqldb"
	"tripplanner/internal/tracelog"
)

// SQLStore keeps cache entries in a cache_entries table. It is used as the
// durable origin behind TieredStore so that warm entries survive restarts and
// are shared by several API processes.
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
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value BYTEA NOT NULL,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`
		if s.dialect == sqldb.SQLite {
			ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    expires_at INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`
		}
		_, s.schemaErr = s.db.ExecContext(ctx, ddl)
	})
	return s.schemaErr
}

// Load returns the value and its expiry, or ErrNotFound when absent or expired.
func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, time.Time, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, time.Time{}, err
	}
	var value []byte
	var expiresAt time.Time
	row := s.db.QueryRowContext(ctx, s.dialect.Bind(`SELECT value, expires_at FROM cache_entries WHERE key=$1`), key)
	var err error
	if s.dialect == sqldb.SQLite {
		var ms int64
		err = row.Scan(&value, &ms)
		expiresAt = time.UnixMilli(ms)
	} else {
		err = row.Scan(&value, &expiresAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	if !s.now().Before(expiresAt) {
		_, _ = s.db.ExecContext(ctx, s.dialect.Bind(`DELETE FROM cache_entries WHERE key=$1`), key)
		return nil, time.Time{}, ErrNotFound
	}
	return value, expiresAt, nil
}

// Save upserts the value with an absolute expiry.
func (s *SQLStore) Save(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, s.dialect.Bind(`
INSERT INTO cache_entries (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value=EXCLUDED.value, expires_at=EXCLUDED.expires_at
`), key, value, s.dialect.TimeArg(expiresAt))
	return err
}

// Purge deletes every expired entry and reports how many were removed.
func (s *SQLStore) Purge(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Bind(`DELETE FROM cache_entries WHERE expires_at <= $1`), s.dialect.TimeArg(s.now()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes key and reports whether a row was removed.
func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, s.dialect.Bind(`DELETE FROM cache_entries WHERE key=$1`), key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Clear removes every entry under prefix. LIKE narrows the scan; the exact
// prefix test runs here because SQLite matches LIKE case-insensitively.
func (s *SQLStore) Clear(ctx context.Context, prefix string) (int, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		res, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		return int(n), err
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.Bind(`SELECT key FROM cache_entries WHERE key LIKE $1 ESCAPE '\'`), likePrefix(prefix+":"))
	if err != nil {
		return 0, err
	}
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, err
		}
		if underPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	del := s.dialect.Bind(`DELETE FROM cache_entries WHERE key=$1`)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, del, key); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, _, err := s.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			tracelog.Logger(ctx).Warn("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultPOITTL
	}
	if err := s.Save(ctx, key, value, s.now().Add(ttl)); err != nil {
		tracelog.Logger(ctx).Warn("cache set failed", "key", key, "error", err)
		return false
	}
	return true
}
