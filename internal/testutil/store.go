// Package testutil holds helpers shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hoarder/internal/store"
)

// OpenStore opens a store in a fresh temporary directory with sequential
// identities ("rec-1", "rec-2", ...). The store is closed when the test ends.
func OpenStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hoarder.db")
	opts = append([]store.Option{store.WithIDGenerator(NewSequentialIDs("rec"))}, opts...)
	s, err := store.Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
