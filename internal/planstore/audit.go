package planstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripplanner/internal/sqldb"
)

// Audit actions and resource types written by the planner.
const (
	ActionPlanCreate   = "plan.create"
	ActionPlanReject   = "plan.reject"
	ActionCacheClear   = "cache.clear"
	ResourceTripPlan   = "trip_plan"
	ResourceCacheEntry = "cache_entry"
)

const DefaultAuditLimit = 100

// AuditEntry records one request that created or changed a resource.
type AuditEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id,omitempty"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id,omitempty"`
	IPAddress     string          `json:"ip_address,omitempty"`
	UserAgent     string          `json:"user_agent,omitempty"`
	RequestPath   string          `json:"request_path,omitempty"`
	RequestMethod string          `json:"request_method,omitempty"`
	Before        json.RawMessage `json:"before_data,omitempty"`
	After         json.RawMessage `json:"after_data,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditFilter selects entries by user and resource. Empty fields match all.
type AuditFilter struct {
	UserID     string
	ResourceID string
	Limit      int
}

func (f AuditFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultAuditLimit
	}
	return f.Limit
}

func (f AuditFilter) match(e AuditEntry) bool {
	return (f.UserID == "" || e.UserID == f.UserID) && (f.ResourceID == "" || e.ResourceID == f.ResourceID)
}

// AuditLog is an append-only record of requests. List returns newest first.
type AuditLog interface {
	Record(ctx context.Context, e AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

func prepareAudit(e *AuditEntry, now time.Time) error {
	e.Action = strings.TrimSpace(e.Action)
	if e.Action == "" {
		return fmt.Errorf("audit action is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now.UTC()
	}
	return nil
}

// MemoryAuditLog keeps the most recent entries in process.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
	now     func() time.Time
}

func NewMemoryAuditLog(max int) *MemoryAuditLog {
	if max <= 0 {
		max = DefaultMemoryRecords
	}
	return &MemoryAuditLog{max: max, now: time.Now}
}

func (l *MemoryAuditLog) Record(_ context.Context, e AuditEntry) error {
	if err := prepareAudit(&e, l.now()); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.max; over > 0 {
		l.entries = append([]AuditEntry(nil), l.entries[over:]...)
	}
	return nil
}

func (l *MemoryAuditLog) List(_ context.Context, f AuditFilter) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []AuditEntry{}
	for i := len(l.entries) - 1; i >= 0 && len(out) < f.limit(); i-- {
		if f.match(l.entries[i]) {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

// SQLAuditLog keeps entries in the audit_logs table.
type SQLAuditLog struct {
	db         *sql.DB
	dialect    sqldb.Dialect
	now        func() time.Time
	schemaOnce sync.Once
	schemaErr  error
}

func NewSQLAuditLog(db *sql.DB, dialect sqldb.Dialect) *SQLAuditLog {
	if dialect == "" {
		dialect = sqldb.Postgres
	}
	return &SQLAuditLog{db: db, dialect: dialect, now: time.Now}
}

func (l *SQLAuditLog) ensureSchema(ctx context.Context) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("db is nil")
	}
	l.schemaOnce.Do(func() {
		createdAt := "TIMESTAMP WITH TIME ZONE"
		if l.dialect == sqldb.SQLite {
			createdAt = "INTEGER"
		}
		ddl := `
CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL DEFAULT '',
    action TEXT NOT NULL,
    resource_type TEXT NOT NULL DEFAULT '',
    resource_id TEXT NOT NULL DEFAULT '',
    ip_address TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    request_path TEXT NOT NULL DEFAULT '',
    request_method TEXT NOT NULL DEFAULT '',
    before_data TEXT NOT NULL DEFAULT '',
    after_data TEXT NOT NULL DEFAULT '',
    created_at ` + createdAt + ` NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_resource_id ON audit_logs(resource_id);
`
		_, l.schemaErr = l.db.ExecContext(ctx, ddl)
	})
	return l.schemaErr
}

func (l *SQLAuditLog) Record(ctx context.Context, e AuditEntry) error {
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}
	if err := prepareAudit(&e, l.now()); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, l.dialect.Bind(`
INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, ip_address, user_agent, request_path, request_method, before_data, after_data, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`), e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, e.IPAddress, e.UserAgent, e.RequestPath, e.RequestMethod,
		string(e.Before), string(e.After), l.dialect.TimeArg(e.CreatedAt))
	return err
}

func (l *SQLAuditLog) List(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}
	var (
		conds []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		conds = append(conds, "user_id=$"+strconv.Itoa(len(args)))
	}
	if f.ResourceID != "" {
		args = append(args, f.ResourceID)
		conds = append(conds, "resource_id=$"+strconv.Itoa(len(args)))
	}
	q := `SELECT id, user_id, action, resource_type, resource_id, ip_address, user_agent, request_path, request_method, before_data, after_data, created_at FROM audit_logs`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.limit())
	q += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := l.db.QueryContext(ctx, l.dialect.Bind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AuditEntry{}
	for rows.Next() {
		var (
			e             AuditEntry
			before, after string
		)
		dest := []any{&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &e.IPAddress, &e.UserAgent, &e.RequestPath, &e.RequestMethod, &before, &after}
		if l.dialect == sqldb.SQLite {
			var ms int64
			err = rows.Scan(append(dest, &ms)...)
			e.CreatedAt = time.UnixMilli(ms).UTC()
		} else {
			err = rows.Scan(append(dest, &e.CreatedAt)...)
		}
		if err != nil {
			return nil, err
		}
		if before != "" {
			e.Before = json.RawMessage(before)
		}
		if after != "" {
			e.After = json.RawMessage(after)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
