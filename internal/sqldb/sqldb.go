// Package sqldb opens the SQL database shared by the cache and plan stores and
// smooths over the Postgres/sqlite differences they care about.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}

func (d Dialect) driverName() string {
	if d == SQLite {
		return "sqlite"
	}
	return "pgx"
}

// Open connects and pings the database.
func Open(ctx context.Context, d Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(d.driverName(), strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d, err)
	}
	return db, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// Bind rewrites $n placeholders for sqlite. Placeholders must appear in
// ascending order, each once.
func (d Dialect) Bind(q string) string {
	if d != SQLite {
		return q
	}
	return placeholder.ReplaceAllString(q, "?")
}

// TimeArg encodes t as a column value. sqlite columns hold unix millis.
func (d Dialect) TimeArg(t time.Time) any {
	if d == SQLite {
		return t.UnixMilli()
	}
	return t
}
