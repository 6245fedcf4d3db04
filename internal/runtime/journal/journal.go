// Package journal provides a SQLite-backed statement writer. It records
// every statement the sink would send to the graph store, which makes it a
// dry-run target and an audit trail.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

// DefaultFilePath is used when Config.FilePath is empty.
const DefaultFilePath = "graphsink_journal.db"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("journal: store is closed")

// Config holds the journal settings.
type Config struct {
	// FilePath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database (useful for testing).
	FilePath string
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	return c
}

// Entry is one recorded statement.
type Entry struct {
	ID        int64
	Query     string
	Events    []any
	WrittenAt time.Time
}

// Store records statements in SQLite. It implements sink.Writer.
type Store struct {
	db *sql.DB

	closed   bool
	closedMu sync.RWMutex
}

// New opens the journal and creates its schema.
func New(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("sqlite3", cfg.FilePath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS statements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		events TEXT NOT NULL,
		event_count INTEGER NOT NULL,
		written_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Write records query with its events.
func (s *Store) Write(ctx context.Context, query string, events []any) error {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if events == nil {
		events = []any{}
	}
	payload, err := jsoncodec.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO statements (query, events, event_count, written_at) VALUES (?, ?, ?, ?)`,
		query, string(payload), len(events), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record statement: %w", err)
	}
	return nil
}

// Entries returns the recorded statements in write order.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, query, events, written_at FROM statements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query statements: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			payload string
		)
		if err := rows.Scan(&e.ID, &e.Query, &payload, &e.WrittenAt); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		if err := jsoncodec.Unmarshal([]byte(payload), &e.Events); err != nil {
			return nil, fmt.Errorf("failed to decode events of statement %d: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats reports how many statements and events have been recorded.
func (s *Store) Stats(ctx context.Context) (statements, events int64, err error) {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	if s.closed {
		return 0, 0, ErrClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(event_count), 0) FROM statements`)
	if err := row.Scan(&statements, &events); err != nil {
		return 0, 0, fmt.Errorf("failed to count statements: %w", err)
	}
	return statements, events, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
