package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tempodb/internal/model"
)

var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// validOps validates ops the way the engine does before reserving.
func validOps(t *testing.T, ops ...model.Operation) []model.Operation {
	t.Helper()
	out, err := model.ValidateOperations(ops)
	require.NoError(t, err)
	return out
}

// testPut builds a put of a small person document.
func testPut(id string, version int64, from time.Time) model.Put {
	return model.Put{
		Document:  model.MustDocument(id, map[string]any{"name": "Pablo", "version": version}),
		ValidFrom: from,
	}
}

// collect drains a cursor.
func collect(t *testing.T, cur *Cursor) []model.TransactionRecord {
	t.Helper()
	var recs []model.TransactionRecord
	for cur.Next() {
		recs = append(recs, cur.Record())
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())
	return recs
}
