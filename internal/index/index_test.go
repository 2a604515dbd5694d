package index

import (
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tempodb/internal/model"
)

var base = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

func hour(h int) time.Time {
	return base.Add(time.Duration(h) * time.Hour)
}

func instant(id int64) model.TransactionInstant {
	return model.TransactionInstant{TxID: id, TxTime: base.Add(time.Duration(id) * 24 * time.Hour)}
}

func put(id, hash string, from, to time.Time) model.Put {
	return model.Put{Document: model.Document{ID: id}, ValidFrom: from, ValidTo: to, DocHash: hash}
}

// resolved returns the document hash visible for id, or "" when absent or
// deleted.
func resolved(v *View, id string, vt time.Time, basis int64) string {
	e, ok := v.Resolve(id, vt, basis)
	if !ok || e.IsTombstone() {
		return ""
	}
	return e.DocHash
}

func TestIndex_OpenEndedVersions(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("person", "v0", hour(1), time.Time{}), instant(1)))
	require.NoError(t, ix.Apply(put("person", "v1", hour(3), time.Time{}), instant(2)))

	v := ix.View()
	assert.Equal(t, "", resolved(v, "person", hour(0), 2))
	assert.Equal(t, "v0", resolved(v, "person", hour(1), 2))
	assert.Equal(t, "v0", resolved(v, "person", hour(2), 2))
	assert.Equal(t, "v1", resolved(v, "person", hour(3), 2))
	assert.Equal(t, "v1", resolved(v, "person", hour(4), 2))
	assert.Equal(t, "v1", resolved(v, "person", model.EndOfTime.Add(-time.Second), 2))

	// Before the second transaction v0 was open-ended.
	assert.Equal(t, "v0", resolved(v, "person", hour(4), 1))
	assert.Equal(t, "", resolved(v, "person", hour(4), 0))
}

func TestIndex_BoundedPut(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("person", "v0", hour(1), hour(3)), instant(1)))

	v := ix.View()
	assert.Equal(t, "", resolved(v, "person", hour(0), 1))
	assert.Equal(t, "v0", resolved(v, "person", hour(2), 1))
	assert.Equal(t, "", resolved(v, "person", hour(3), 1))
	assert.Equal(t, "", resolved(v, "person", hour(4), 1))
}

func TestIndex_SplitsOverlappedEntry(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("p", "v0", hour(1), time.Time{}), instant(1)))
	require.NoError(t, ix.Apply(put("p", "v1", hour(2), hour(3)), instant(2)))

	v := ix.View()
	assert.Equal(t, "v0", resolved(v, "p", hour(1), 2))
	assert.Equal(t, "v1", resolved(v, "p", hour(2), 2))
	assert.Equal(t, "v0", resolved(v, "p", hour(3), 2))
	assert.Equal(t, "v0", resolved(v, "p", hour(9), 2))
	assert.Equal(t, "v0", resolved(v, "p", hour(2), 1))

	timeline := v.Timeline("p", 2)
	require.Len(t, timeline, 3)
	assert.Equal(t, hour(1), timeline[0].ValidFrom)
	assert.Equal(t, hour(2), timeline[0].ValidTo)
	assert.Equal(t, "v1", timeline[1].DocHash)
	assert.Equal(t, hour(3), timeline[2].ValidFrom)
	assert.Equal(t, model.EndOfTime, timeline[2].ValidTo)
	for _, e := range timeline {
		assert.Equal(t, int64(2), e.TxFrom.TxID)
		assert.True(t, e.IsOpen())
	}

	all := v.Entries("p")
	require.Len(t, all, 4)
	assert.Equal(t, "v0", all[0].DocHash)
	assert.Equal(t, int64(1), all[0].TxFrom.TxID)
	assert.Equal(t, int64(2), all[0].TxTo.TxID)
}

func TestIndex_OpenEndedStopsAtNextVersion(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("p", "v1", hour(3), time.Time{}), instant(1)))
	require.NoError(t, ix.Apply(put("p", "v0", hour(1), time.Time{}), instant(2)))
	require.NoError(t, ix.Apply(model.Delete{ID: "p", ValidFrom: hour(2)}, instant(3)))

	v := ix.View()
	assert.Equal(t, "v0", resolved(v, "p", hour(1), 3))
	assert.Equal(t, "", resolved(v, "p", hour(2), 3))
	assert.Equal(t, "v1", resolved(v, "p", hour(3), 3))
	assert.Equal(t, "v1", resolved(v, "p", hour(8), 3))

	e, ok := v.Resolve("p", hour(2), 3)
	require.True(t, ok)
	assert.True(t, e.IsTombstone())
	assert.Equal(t, hour(3), e.ValidTo)
}

func TestIndex_DefaultValidFromIsTxTime(t *testing.T) {
	ix := New()
	inst := model.TransactionInstant{TxID: 1, TxTime: hour(5)}
	require.NoError(t, ix.Apply(put("p", "v0", time.Time{}, time.Time{}), inst))

	v := ix.View()
	assert.Equal(t, "", resolved(v, "p", hour(4), 1))
	assert.Equal(t, "v0", resolved(v, "p", hour(5), 1))
}

func TestIndex_SameTransactionSupersedeIsDropped(t *testing.T) {
	ix := New()
	ops := []model.Operation{
		put("p", "a", hour(1), time.Time{}),
		put("p", "b", hour(1), time.Time{}),
		put("p", "c", hour(2), hour(3)),
	}
	require.NoError(t, ix.ApplyTransaction(ops, instant(1)))

	v := ix.View()
	all := v.Entries("p")
	require.Len(t, all, 3)
	for _, e := range all {
		assert.NotEqual(t, "a", e.DocHash)
		assert.True(t, e.IsOpen())
	}
	assert.Equal(t, "b", resolved(v, "p", hour(1), 1))
	assert.Equal(t, "c", resolved(v, "p", hour(2), 1))
	assert.Equal(t, "b", resolved(v, "p", hour(3), 1))
}

func TestIndex_Evict(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("p", "v0", hour(1), time.Time{}), instant(1)))
	require.NoError(t, ix.Apply(put("p", "v1", hour(3), time.Time{}), instant(2)))
	require.NoError(t, ix.Apply(put("q", "w0", hour(1), time.Time{}), instant(2)))
	before := ix.View()

	require.NoError(t, ix.Apply(model.Evict{ID: "p"}, instant(3)))
	after := ix.View()

	for basis := int64(0); basis <= 3; basis++ {
		for h := 0; h < 6; h++ {
			assert.Equal(t, "", resolved(after, "p", hour(h), basis))
		}
	}
	assert.Empty(t, after.Entries("p"))
	assert.Equal(t, []string{"q"}, after.EntityIDs())
	assert.Equal(t, "w0", resolved(after, "q", hour(2), 3))

	// Views are immutable: the earlier view still holds the entity.
	assert.Equal(t, "v1", resolved(before, "p", hour(4), 2))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_ViewIsImmutable(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("p", "v0", hour(1), time.Time{}), instant(1)))
	v := ix.View()
	entries := v.Entries("p")

	require.NoError(t, ix.Apply(put("p", "v1", hour(0), time.Time{}), instant(2)))
	require.NoError(t, ix.Apply(put("r", "x", hour(0), time.Time{}), instant(3)))

	assert.Equal(t, entries, v.Entries("p"))
	assert.Equal(t, []string{"p"}, v.EntityIDs())
	assert.Equal(t, "v1", resolved(ix.View(), "p", hour(1), 2))
}

func TestIndex_PredicatesAreNoOps(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(model.Match{ID: "p"}, instant(1)))
	require.NoError(t, ix.Apply(model.MatchNotExists{ID: "p"}, instant(1)))
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_RejectsPutWithoutHash(t *testing.T) {
	ix := New()
	err := ix.Apply(model.Put{Document: model.Document{ID: "p"}}, instant(1))
	require.Error(t, err)
	assert.Equal(t, 0, ix.Len())
}

func TestIndex_FailedTransactionLeavesIndexUnchanged(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Apply(put("p", "v0", hour(1), time.Time{}), instant(1)))
	before := ix.View()

	ops := []model.Operation{
		put("p", "v1", hour(2), time.Time{}),
		put("q", "w0", hour(1), time.Time{}),
		put("r", "x0", model.EndOfTime, time.Time{}),
	}
	err := ix.ApplyTransaction(ops, instant(2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty valid-time span")

	after := ix.View()
	assert.Equal(t, []string{"p"}, after.EntityIDs())
	assert.Equal(t, "v0", resolved(after, "p", hour(3), 2))
	assert.Equal(t, before.Entries("p"), after.Entries("p"))

	// The next transaction applies on top of the restored state.
	require.NoError(t, ix.ApplyTransaction([]model.Operation{put("p", "v1", hour(2), time.Time{})}, instant(2)))
	v := ix.View()
	assert.Equal(t, "v0", resolved(v, "p", hour(1), 2))
	assert.Equal(t, "v1", resolved(v, "p", hour(3), 2))
	assert.Equal(t, "v0", resolved(v, "p", hour(3), 1))
}

func TestIndex_ResolvesEveryRevisionOfLongHistory(t *testing.T) {
	const txs = 500
	ix := New()
	for tx := int64(1); tx <= txs; tx++ {
		require.NoError(t, ix.Apply(put("p", fmt.Sprintf("v%d", tx), hour(1), time.Time{}), instant(tx)))
		if tx%2 == 0 {
			require.NoError(t, ix.Apply(put("q", fmt.Sprintf("w%d", tx), hour(1), time.Time{}), instant(tx)))
		}
	}

	v := ix.View()
	assert.Equal(t, "", resolved(v, "p", hour(1), 0))
	assert.Equal(t, "", resolved(v, "q", hour(1), 1))
	for b := int64(1); b <= txs; b++ {
		require.Equal(t, fmt.Sprintf("v%d", b), resolved(v, "p", hour(5), b))
		require.Equal(t, "", resolved(v, "p", hour(0), b))
		if b >= 2 {
			require.Equal(t, fmt.Sprintf("w%d", b-b%2), resolved(v, "q", hour(1), b))
		}
	}
	require.Len(t, v.Timeline("p", 250), 1)
	assert.Len(t, v.Entries("p"), txs)
}

// TestIndex_RandomHistoryMatchesModel applies random transactions and checks
// every (valid time, basis) pair against a slot-per-hour model, and that the
// entries visible at any basis never overlap.
func TestIndex_RandomHistoryMatchesModel(t *testing.T) {
	const (
		slots = 12
		txs   = 60
	)
	rng := rand.New(rand.NewPCG(1, 2))
	ix := New()

	// states[b][h] is the expected hash at hour h as of transaction b.
	states := [][slots]string{{}}
	for tx := int64(1); tx <= txs; tx++ {
		state := states[len(states)-1]
		var ops []model.Operation
		for n := rng.IntN(3) + 1; n > 0; n-- {
			from := rng.IntN(slots)
			to := from + 1 + rng.IntN(slots-from)
			hash := ""
			if rng.IntN(4) > 0 {
				hash = fmt.Sprintf("h%d-%d", tx, n)
			}
			end := hour(to)
			if to == slots {
				end = model.EndOfTime
			}
			if hash == "" {
				ops = append(ops, model.Delete{ID: "e", ValidFrom: hour(from), ValidTo: end})
			} else {
				ops = append(ops, put("e", hash, hour(from), end))
			}
			for h := from; h < to; h++ {
				state[h] = hash
			}
		}
		require.NoError(t, ix.ApplyTransaction(ops, instant(tx)))
		states = append(states, state)
	}

	v := ix.View()
	for b := int64(0); b <= txs; b++ {
		for h := 0; h < slots; h++ {
			require.Equal(t, states[b][h], resolved(v, "e", hour(h), b), "basis %d hour %d", b, h)
		}
		visible := v.Timeline("e", b)
		for i := 1; i < len(visible); i++ {
			require.False(t, visible[i-1].Overlaps(visible[i]), "basis %d: %+v overlaps %+v", b, visible[i-1], visible[i])
		}
	}
}
