// Package file provides a storage.Store persisted as a single JSON document on
// disk. It is the default driver for the durable ("local") storage mode.
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aussiebroadwan/sessionkit/pkg/storage"
)

// ErrCorrupt is returned by New when the backing file exists but does not
// hold a valid document.
var ErrCorrupt = errors.New("storage: corrupt storage file")

// Store keeps every key in memory and rewrites the backing file on each
// mutation.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string][]byte
}

var _ storage.Store = (*Store)(nil)

// New opens (or lazily creates) the store at path. A missing file is treated
// as empty; an unreadable or corrupt file is an error.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage file path is required")
	}

	s := &Store{
		path: path,
		data: make(map[string][]byte),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

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
	return s.persistLocked()
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.persistLocked()
}

func (s *Store) Close() error { return nil }

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read storage file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	if err := json.Unmarshal(b, &s.data); err != nil {
		return fmt.Errorf("decode storage file: %w: %w", ErrCorrupt, err)
	}
	if s.data == nil {
		s.data = make(map[string][]byte)
	}
	return nil
}

// persistLocked writes to a sibling temp file and renames it over the target
// so a crash never leaves a half-written document behind.
func (s *Store) persistLocked() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp storage file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod storage file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close storage file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
