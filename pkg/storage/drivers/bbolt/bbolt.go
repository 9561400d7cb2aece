// Package bbolt provides a storage.Store backed by a BBolt database file.
package bbolt

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/sessionkit/pkg/storage"
	"go.etcd.io/bbolt"
)

// Bucket is the bucket holding every key written through the Store.
const Bucket = "sessionkit"

// Store implements storage.Store on a single BBolt bucket.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// New returns a Store on an already opened database, creating the bucket if
// needed.
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(Bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating bbolt bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Open opens the BBolt database at path and returns a Store on it. The file
// lock wait is bounded so a second process fails fast instead of hanging.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(Bucket)).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("%s: %w", key, storage.ErrNotFound)
		}
		// Values are only valid for the life of the transaction.
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *Store) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(Bucket)).Put([]byte(key), value)
	})
}

func (s *Store) Remove(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(Bucket)).Delete([]byte(key))
	})
}
