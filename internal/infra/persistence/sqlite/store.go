// Package sqlite persists collections as JSON payloads in a single SQLite
// table, one row per collection.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"budgetcore/pkg/domain"
)

var _ domain.CollectionAdapter = (*Store)(nil)

// DefaultPath is used when no path is configured.
const DefaultPath = "budgetcore.db"

// Store is a SQLite-backed collection adapter.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and ensures the
// collections table exists.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps file locking simple.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create collections table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Name implements domain.CollectionAdapter.
func (s *Store) Name() string { return "sqlite" }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// LoadAll implements domain.CollectionAdapter.
func (s *Store) LoadAll(ctx context.Context, collection string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM collections WHERE name = ?`, collection).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	return payload, nil
}

// SaveAll implements domain.CollectionAdapter.
func (s *Store) SaveAll(ctx context.Context, collection string, payload []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collections(name,payload) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET payload=excluded.payload`,
		collection, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

// Close implements domain.CollectionAdapter.
func (s *Store) Close() error { return s.db.Close() }
