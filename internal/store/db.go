// Package store is the relational backend behind nestsync-stored: one table of user records
// keyed by access code and one table of community messages.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no row matches the requested code.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("record already exists")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS app_users (
	code           TEXT PRIMARY KEY,
	profile        TEXT NULL,
	event_log      TEXT NOT NULL DEFAULT '[]',
	growth_records TEXT NOT NULL DEFAULT '[]',
	created_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS community_messages (
	id           TEXT PRIMARY KEY,
	author_label TEXT NOT NULL,
	text         TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	is_self      BOOLEAN NOT NULL DEFAULT FALSE,
	color_tag    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_community_messages_timestamp ON community_messages (timestamp);
`

// Store wraps a *sql.DB speaking either SQLite or Postgres.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and creates the tables if needed.
// For sqlite the dsn is a file path (":memory:" for a throwaway database).
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers
		db.SetMaxIdleConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind turns ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
