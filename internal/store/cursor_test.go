package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempodb/internal/model"
)

// appendN appends n records, aborting every id divisible by 3.
func appendN(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		var ops []model.Operation
		if i%3 != 0 {
			ops = validOps(t, model.Delete{ID: "e", ValidFrom: epoch.Add(time.Duration(i) * time.Hour)})
		}
		inst, err := s.Reserve(ctx, ops, epoch)
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, model.TransactionRecord{Instant: inst, Committed: i%3 != 0, Operations: ops}))
	}
}

func TestCursor_WithOperationsSkipsAborted(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 6)

	cur, err := s.OpenCursor(context.Background(), 0, true)
	require.NoError(t, err)
	recs := collect(t, cur)

	var ids []int64
	for _, rec := range recs {
		ids = append(ids, rec.Instant.TxID)
		assert.True(t, rec.Committed)
		require.Len(t, rec.Operations, 1)
	}
	assert.Equal(t, []int64{1, 2, 4, 5}, ids)
}

func TestCursor_WithoutOperationsIncludesAborted(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 6)

	cur, err := s.OpenCursor(context.Background(), 2, false)
	require.NoError(t, err)
	recs := collect(t, cur)

	require.Len(t, recs, 4)
	assert.Equal(t, int64(3), recs[0].Instant.TxID)
	assert.False(t, recs[0].Committed)
	assert.True(t, recs[1].Committed)
	for _, rec := range recs {
		assert.Nil(t, rec.Operations)
	}
}

func TestCursor_AfterAbortedIDIsEmptyNotError(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 3)

	cur, err := s.OpenCursor(context.Background(), 2, true)
	require.NoError(t, err)
	assert.Empty(t, collect(t, cur))
}

func TestCursor_Pages(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 2*cursorPageSize+10)

	cur, err := s.OpenCursor(context.Background(), 0, false)
	require.NoError(t, err)
	recs := collect(t, cur)

	require.Len(t, recs, 2*cursorPageSize+10)
	for i, rec := range recs {
		assert.Equal(t, int64(i+1), rec.Instant.TxID)
	}
}

func TestCursor_DoesNotBlockWriter(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 3)
	ctx := context.Background()

	cur, err := s.OpenCursor(ctx, 0, false)
	require.NoError(t, err)
	require.True(t, cur.Next())

	// The open cursor holds no connection, so appends proceed.
	appendN(t, s, 1)
	assert.Equal(t, int64(4), s.LastLogged().TxID)
	require.NoError(t, cur.Close())
}

func TestCursor_DoubleClose(t *testing.T) {
	s := createTestStore(t)
	cur, err := s.OpenCursor(context.Background(), 0, true)
	require.NoError(t, err)

	require.NoError(t, cur.Close())
	err = cur.Close()
	require.Error(t, err)
	assert.True(t, model.IsDoubleClose(err))
	assert.False(t, cur.Next())
}

func TestCursor_ReportsCorruption(t *testing.T) {
	s := createTestStore(t)
	appendN(t, s, 1)

	_, err := s.db.Exec(`
		INSERT INTO tx_log (tx_id, tx_time, committed, ops, ops_hash)
		VALUES (2, '2000-01-01T00:00:00Z', 1, '[{"op":"teleport","id":"x"}]', NULL)
	`)
	require.NoError(t, err)

	cur, err := s.OpenCursor(context.Background(), 0, true)
	require.NoError(t, err)
	defer cur.Close()
	for cur.Next() {
	}
	require.Error(t, cur.Err())
	assert.True(t, model.IsLogCorruption(cur.Err()))
}

func TestCursor_DigestMismatchIsCorruption(t *testing.T) {
	s := createTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO tx_log (tx_id, tx_time, committed, ops, ops_hash)
		VALUES (1, '2000-01-01T00:00:00Z', 1, '[]', 'deadbeef')
	`)
	require.NoError(t, err)

	cur, err := s.OpenCursor(context.Background(), 0, true)
	require.NoError(t, err)
	defer cur.Close()
	assert.False(t, cur.Next())
	assert.True(t, model.IsLogCorruption(cur.Err()))
}

func TestOpenCursor_NegativeAfter(t *testing.T) {
	s := createTestStore(t)
	_, err := s.OpenCursor(context.Background(), -1, true)
	assert.Error(t, err)
}
