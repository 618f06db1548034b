// Package journal persists the active session in SQLite so that a check-in
// left behind by a crash can be checked out on the next start.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is the journaled session. The token is stored because it is the only
// way to check the session out again.
type Entry struct {
	SessionID string
	Identity  string
	Token     string
	StartedAt time.Time
}

// Store keeps at most one Entry.
type Store struct {
	sqlDB *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS active_session (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	session_id  TEXT    NOT NULL,
	identity    TEXT    NOT NULL,
	token       TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
)`

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save records the active session, replacing any previous one.
func (s *Store) Save(ctx context.Context, e Entry) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}
	if e.Identity == "" || e.Token == "" || e.StartedAt.IsZero() {
		return fmt.Errorf("incomplete session entry for %q", e.Identity)
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO active_session (id, session_id, identity, token, started_at, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   session_id = excluded.session_id,
		   identity   = excluded.identity,
		   token      = excluded.token,
		   started_at = excluded.started_at,
		   updated_at = excluded.updated_at`,
		e.SessionID, e.Identity, e.Token, toMillis(e.StartedAt), toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load returns the journaled session. ok is false when there is none.
func (s *Store) Load(ctx context.Context) (entry Entry, ok bool, err error) {
	if s == nil || s.sqlDB == nil {
		return Entry{}, false, fmt.Errorf("journal is not configured")
	}

	var startedAt int64
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT session_id, identity, token, started_at FROM active_session WHERE id = 1`)
	if err := row.Scan(&entry.SessionID, &entry.Identity, &entry.Token, &startedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("load session: %w", err)
	}
	entry.StartedAt = fromMillis(startedAt)
	return entry, true, nil
}

// Clear removes the journaled session. Clearing an empty journal is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("journal is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM active_session WHERE id = 1`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
