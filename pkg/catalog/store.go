// Package catalog provides the read model for collection documents: a
// key-value document store backed by SQLite, with an optional Redis
// read-through cache. The runtime app only reads; documents are written by
// the offline import tool.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/menta2k/album-cataloger/internal/utils"
)

// ErrNotFound is returned when no document exists at a key.
var ErrNotFound = errors.New("document not found")

// Reader fetches one JSON document by key.
type Reader interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
}

// Store manages document persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the document database.
func Open(dbPath string) (*Store, error) {
	if err := utils.EnsureDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("ensure directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS documents (
		key  TEXT PRIMARY KEY,
		body TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Get returns the document at key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query document %s: %w", key, err)
	}
	return json.RawMessage(body), nil
}

// Put stores or replaces the document at key. Used by the import tool.
func (s *Store) Put(ctx context.Context, key string, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("document at %s is not valid JSON", key)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (key, body) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body`,
		key, string(doc))
	if err != nil {
		return fmt.Errorf("store document %s: %w", key, err)
	}
	return nil
}

// Keys returns all stored document keys, for the import tool's summary.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM documents ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
