// Package history persists finished transcripts in a local sqlite database
// so operators can review what the daemon produced. It is an optional layer;
// transcription never depends on it.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one persisted transcript.
type Record struct {
	ID         int64
	Session    string
	Source     string
	Model      string
	DurationMS int64
	Segments   int
	Text       string
	CreatedAt  time.Time
}

// Store wraps the sqlite connection holding the transcript log.
type Store struct {
	log *slog.Logger

	mu         sync.RWMutex
	db         *sql.DB
	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
}

// Open opens (and initialises) the transcript database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: database path must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(filepath.Clean(path)); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: ensure directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("history: open store: %w", err)
	}

	if err := bootstrap(db); err != nil {
		db.Close()
		return nil, err
	}

	insertStmt, err := db.Prepare(`INSERT INTO transcripts (session, source, model, duration_ms, segments, text, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: prepare insert: %w", err)
	}

	recentStmt, err := db.Prepare(`SELECT id, session, source, model, duration_ms, segments, text, created_at FROM transcripts ORDER BY id DESC LIMIT ?`)
	if err != nil {
		insertStmt.Close()
		db.Close()
		return nil, fmt.Errorf("history: prepare select: %w", err)
	}

	log := logger.With("component", "history.Store")
	log.Info("transcript history open", "path", path)
	return &Store{
		log:        log,
		db:         db,
		insertStmt: insertStmt,
		recentStmt: recentStmt,
	}, nil
}

func bootstrap(db *sql.DB) error {
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		return fmt.Errorf("history: configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS transcripts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0,
			segments INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`); err != nil {
		return fmt.Errorf("history: create transcripts table: %w", err)
	}

	return nil
}

// Append persists a finished transcript.
func (s *Store) Append(rec Record) error {
	if s == nil {
		return errors.New("history: store is not initialised")
	}
	if rec.Text == "" {
		return errors.New("history: transcript text must not be empty")
	}
	if rec.Source == "" {
		return errors.New("history: transcript source must not be empty")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	s.mu.RLock()
	stmt := s.insertStmt
	s.mu.RUnlock()
	if stmt == nil {
		return errors.New("history: store is closed")
	}

	if _, err := stmt.Exec(rec.Session, rec.Source, rec.Model, rec.DurationMS, rec.Segments, rec.Text, createdAt.Unix()); err != nil {
		return fmt.Errorf("history: append transcript: %w", err)
	}
	return nil
}

// Recent retrieves up to limit transcripts, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	if s == nil {
		return nil, errors.New("history: store is not initialised")
	}
	if limit <= 0 {
		return nil, errors.New("history: limit must be greater than zero")
	}

	s.mu.RLock()
	stmt := s.recentStmt
	s.mu.RUnlock()
	if stmt == nil {
		return nil, errors.New("history: store is closed")
	}

	rows, err := stmt.Query(limit)
	if err != nil {
		return nil, fmt.Errorf("history: query transcripts: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			rec Record
			ts  int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Source, &rec.Model, &rec.DurationMS, &rec.Segments, &rec.Text, &ts); err != nil {
			return nil, fmt.Errorf("history: scan transcript row: %w", err)
		}
		rec.CreatedAt = time.Unix(ts, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate transcript rows: %w", err)
	}

	return records, nil
}

// Close releases the prepared statements and the database connection.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	s.insertStmt.Close()
	s.recentStmt.Close()
	err := s.db.Close()

	s.db = nil
	s.insertStmt = nil
	s.recentStmt = nil

	if err != nil {
		return fmt.Errorf("history: close store: %w", err)
	}
	return nil
}
