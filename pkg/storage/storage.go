// Package storage defines the key-value substrate that mirrors the client
// session. Concrete drivers live under storage/drivers.
package storage

import "errors"

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: not found")

// Store is a small durable (or session-scoped) key-value store. Drivers must
// be safe for concurrent use. There is no cross-process locking: when two
// processes share a durable store the last write wins.
type Store interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, overwriting any existing value.
	Set(key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error

	// Close releases any underlying resources.
	Close() error
}
