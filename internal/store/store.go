// Package store is the embedded persistence layer. It keeps protected-entity
// records, call-edge events, error events, and change events in a local
// SQLite database (pure-Go driver), creating the schema on first open.
//
// Connection policy: every concurrent actor (tracer, monitor, query path)
// acquires its own Session, which pins a dedicated database connection for
// that actor's lifetime. Sessions are never shared across goroutines; the
// store serializes only at open/close under a single mutex and otherwise
// relies on SQLite's own single-writer semantics.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// Store owns the database handle and hands out per-actor sessions.
type Store struct {
	db   *sql.DB
	path string

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// Open opens (or creates) the database at path and ensures the schema
// exists. The parent directory is created if absent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", strings.ToLower(pragma), err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:       db,
		path:     path,
		sessions: make(map[*Session]struct{}),
	}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Session pins a dedicated connection for one actor. The caller owns the
// session and must not share it across goroutines.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("store: already closed")
	}
	s.mu.Unlock()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquire connection: %w", err)
	}

	sess := &Session{conn: conn, store: s}
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	return sess, nil
}

// release detaches a closed session from the registry.
func (s *Store) release(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Close releases every outstanding session and the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessions = make(map[*Session]struct{})
	s.mu.Unlock()

	for _, sess := range open {
		_ = sess.conn.Close()
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close database: %w", err)
	}
	return nil
}

// missingTable reports whether err is a read against a table that does not
// exist yet. Treated as "no data", not as a failure.
func missingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
