// Package storagetest holds the conformance suite every storage driver runs
// in its own tests.
package storagetest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/aussiebroadwan/sessionkit/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the storage.Store contract. The store must start
// empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		_, err := s.Get("missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set("k1", []byte(`{"user_id":"alice"}`)))

		got, err := s.Get("k1")
		require.NoError(t, err)
		require.JSONEq(t, `{"user_id":"alice"}`, string(got))
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, s.Set("k2", []byte("first")))
		require.NoError(t, s.Set("k2", []byte("second")))

		got, err := s.Get("k2")
		require.NoError(t, err)
		require.Equal(t, "second", string(got))
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, s.Set("k3", []byte("v")))
		require.NoError(t, s.Remove("k3"))
		require.NoError(t, s.Remove("k3"))

		_, err := s.Get("k3")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		require.NoError(t, s.Set("k4", []byte("abc")))

		got, err := s.Get("k4")
		require.NoError(t, err)
		got[0] = 'z'

		again, err := s.Get("k4")
		require.NoError(t, err)
		require.Equal(t, "abc", string(again))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				key := fmt.Sprintf("c%d", i)
				assert.NoError(t, s.Set(key, []byte(key)))
				got, err := s.Get(key)
				assert.NoError(t, err)
				assert.Equal(t, key, string(got))
			}()
		}
		wg.Wait()
	})
}
