// Package sqlite provides a storage.Store backed by an SQLite database file
// (pure Go driver, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/sessionkit/pkg/storage"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

var _ storage.Store = (*Store)(nil)

// Open opens the database at path, applies pending migrations and returns a
// ready Store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	s, err := NewStore(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
	}

	if err := s.ApplyMigrations(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to apply sqlite storage migrations: %w", err)
	}
	return s, nil
}

// NewStore opens a connection for dsn without touching the schema. Callers
// must run ApplyMigrations before use.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single writer avoids SQLITE_BUSY between pooled connections; the
	// store only ever holds one small record.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(context.Background(),
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return value, nil
}

func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

func (s *Store) Remove(key string) error {
	_, err := s.db.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}
