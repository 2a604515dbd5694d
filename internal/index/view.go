package index

import (
	"sort"
	"time"

	"github.com/google/btree"
)

// View is an immutable point-in-time copy of the index. It is safe for
// concurrent use.
type View struct {
	entities *btree.BTreeG[*entity]
}

// Resolve returns the entry for id whose valid interval contains validTime
// and which is visible at transaction basis. At most one entry qualifies.
// A tombstone is returned as found; callers treat it as absent.
func (v *View) Resolve(id string, validTime time.Time, basis int64) (Entry, bool) {
	e, ok := v.entities.Get(&entity{id: id})
	if !ok {
		return Entry{}, false
	}
	tree := e.at(basis)
	if tree == nil {
		return Entry{}, false
	}

	var found Entry
	var hit bool
	tree.DescendLessOrEqual(Entry{ValidFrom: validTime}, func(it Entry) bool {
		if it.Contains(validTime) {
			found, hit = it, true
		}
		return false
	})
	return found, hit
}

// Timeline returns every entry of id visible at basis, ordered by valid
// time. Tombstones are included. TxTo is as of basis, so every entry
// reports open.
func (v *View) Timeline(id string, basis int64) []Entry {
	e, ok := v.entities.Get(&entity{id: id})
	if !ok {
		return nil
	}
	tree := e.at(basis)
	if tree == nil {
		return nil
	}
	out := make([]Entry, 0, tree.Len())
	tree.Ascend(func(it Entry) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Entries returns all entries of id across both time axes, ordered by
// valid time and then transaction time.
func (v *View) Entries(id string) []Entry {
	e, ok := v.entities.Get(&entity{id: id})
	if !ok {
		return nil
	}
	out := make([]Entry, 0, e.current.Len()+e.history.Len())
	e.current.Ascend(func(it Entry) bool {
		out = append(out, it)
		return true
	})
	e.history.Ascend(func(it Entry) bool {
		out = append(out, it)
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		return lessByValidFromTx(out[i], out[j])
	})
	return out
}

// EntityIDs returns the indexed entity ids in ascending order.
func (v *View) EntityIDs() []string {
	ids := make([]string, 0, v.entities.Len())
	v.entities.Ascend(func(e *entity) bool {
		ids = append(ids, e.id)
		return true
	})
	return ids
}
