// Package sqlite persists projects, tasks, usage records and checkpoint
// metadata in a single SQLite database (modernc.org/sqlite, no cgo).
//
// Timestamps are stored as RFC 3339 text in UTC. JSON columns hold subtask
// lists, usage metadata and checkpoint payloads.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	tgerrors "github.com/mrz1836/tokengov/internal/errors"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open //nolint:gochecknoglobals // test seam

const timeLayout = time.RFC3339Nano

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store is the SQLite-backed persistence layer. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger.With().Str("component", "store").Logger()
	}
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, tgerrors.Wrap(tgerrors.ErrInvalidArgument, "database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// The pragmas below are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}

	s.logger.Debug().Str("path", path).Msg("database ready")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id            TEXT PRIMARY KEY,
			name          TEXT    NOT NULL,
			description   TEXT    NOT NULL DEFAULT '',
			token_budget  INTEGER NOT NULL CHECK (token_budget > 0),
			priority_tier TEXT    NOT NULL CHECK (priority_tier IN ('tier_1', 'tier_2')),
			owner         TEXT    NOT NULL DEFAULT '',
			created_at    TEXT    NOT NULL,
			updated_at    TEXT    NOT NULL
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			project_id       TEXT    NOT NULL,
			parent_agent_id  TEXT    NOT NULL DEFAULT '',
			name             TEXT    NOT NULL DEFAULT '',
			description      TEXT    NOT NULL DEFAULT '',
			complexity       TEXT    NOT NULL CHECK (complexity IN ('simple', 'complex', 'very_complex')),
			estimated_tokens INTEGER NOT NULL DEFAULT 0 CHECK (estimated_tokens >= 0),
			actual_tokens    INTEGER NOT NULL DEFAULT 0 CHECK (actual_tokens >= 0),
			subtask_ids      TEXT    NOT NULL DEFAULT '[]',
			checkpoint_state TEXT    NOT NULL DEFAULT 'none' CHECK (checkpoint_state IN ('none', 'requested', 'saved')),
			checkpoint_uri   TEXT    NOT NULL DEFAULT '',
			status           TEXT    NOT NULL CHECK (status IN ('pending', 'in_progress', 'paused', 'completed', 'failed')),
			error_message    TEXT    NOT NULL DEFAULT '',
			created_at       TEXT    NOT NULL,
			started_at       TEXT,
			completed_at     TEXT,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_status  ON tasks(status);

		CREATE TABLE IF NOT EXISTS token_usage (
			id             TEXT PRIMARY KEY,
			project_id     TEXT    NOT NULL,
			task_id        TEXT    NOT NULL DEFAULT '',
			agent_id       TEXT    NOT NULL DEFAULT '',
			tokens_used    INTEGER NOT NULL CHECK (tokens_used >= 0),
			operation_type TEXT    NOT NULL DEFAULT '',
			metadata       TEXT    NOT NULL DEFAULT '{}',
			timestamp      TEXT    NOT NULL,
			FOREIGN KEY (project_id) REFERENCES projects(id)
		);

		CREATE INDEX IF NOT EXISTS idx_usage_project ON token_usage(project_id, timestamp DESC);

		CREATE TABLE IF NOT EXISTS checkpoints (
			id         TEXT PRIMARY KEY,
			task_id    TEXT    NOT NULL,
			uri        TEXT    NOT NULL UNIQUE,
			data       TEXT    NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT    NOT NULL,
			FOREIGN KEY (task_id) REFERENCES tasks(id)
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_task ON checkpoints(task_id, created_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}

// isForeignKeyViolation checks if an error is a SQLite FOREIGN KEY violation.
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse time %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil //nolint:nilnil // absent timestamp
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
