package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/tempodb/internal/store"
)

// TempStore opens a store in a fresh temporary directory and closes it when
// the test ends. It returns the store and its database path, so a test can
// reopen the same file to simulate a restart.
func TempStore(t *testing.T, opts ...store.Option) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tempodb.db")
	s, err := store.Open(path, opts...)
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}
