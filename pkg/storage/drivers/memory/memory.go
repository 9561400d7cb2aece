// Package memory provides a thread-safe in-memory storage.Store. It backs the
// session-scoped storage mode: values live as long as the process.
package memory

import (
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *Store) Close() error { return nil }
