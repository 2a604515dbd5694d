package index

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/roach88/tempodb/internal/model"
)

const treeDegree = 16

// entity is the copy-on-write unit of the index. Once reachable from a View
// it is never mutated; writers clone it first.
type entity struct {
	id      string
	current *btree.BTreeG[Entry]
	history *btree.BTreeG[Entry]

	// revisions holds the current tree as each writing transaction left
	// it, ascending by tx id. Clones share the backing array; a writer only
	// appends past the length any older clone can see.
	revisions []revision
}

// revision is the set of entries visible from txID until the entity is
// next written.
type revision struct {
	txID int64
	tree *btree.BTreeG[Entry]
}

func newEntity(id string) *entity {
	return &entity{
		id:      id,
		current: btree.NewG(treeDegree, lessByValidFrom),
		history: btree.NewG(treeDegree, lessByValidFromTx),
	}
}

func (e *entity) clone() *entity {
	return &entity{
		id:        e.id,
		current:   e.current.Clone(),
		history:   e.history.Clone(),
		revisions: e.revisions,
	}
}

// record saves the current tree as the state left by txID. A second write
// by the same transaction replaces its revision.
func (e *entity) record(txID int64) {
	rev := revision{txID: txID, tree: e.current.Clone()}
	n := len(e.revisions)
	if n > 0 && e.revisions[n-1].txID == txID {
		e.revisions = append(e.revisions[:n-1:n-1], rev)
		return
	}
	e.revisions = append(e.revisions, rev)
}

// at returns the entries visible at basis, or nil when the entity had not
// been written yet.
func (e *entity) at(basis int64) *btree.BTreeG[Entry] {
	i := sort.Search(len(e.revisions), func(i int) bool {
		return e.revisions[i].txID > basis
	})
	if i == 0 {
		return nil
	}
	return e.revisions[i-1].tree
}

func lessByID(a, b *entity) bool {
	return a.id < b.id
}

// Index is the mutable bitemporal index. Apply and ApplyTransaction are
// meant to be called from a single writer; View may be called concurrently.
type Index struct {
	mu       sync.Mutex
	entities *btree.BTreeG[*entity]
}

// New returns an empty index.
func New() *Index {
	return &Index{entities: btree.NewG(treeDegree, lessByID)}
}

// View returns an immutable view of the current index state.
func (ix *Index) View() *View {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return &View{entities: ix.entities.Clone()}
}

// Len returns the number of indexed entities.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.entities.Len()
}

// Apply mutates the index for one operation of a committed transaction.
// Predicates are no-ops.
func (ix *Index) Apply(op model.Operation, inst model.TransactionInstant) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.apply(op, inst)
}

// ApplyTransaction applies the operations of a committed transaction in
// declaration order. A View taken concurrently observes either none or all
// of them. When an operation fails the index is left as it was before the
// transaction.
func (ix *Index) ApplyTransaction(ops []model.Operation, inst model.TransactionInstant) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Entities are copy-on-write, so a lazy clone of the tree is enough to
	// roll back.
	saved := ix.entities.Clone()
	for i, op := range ops {
		if err := ix.apply(op, inst); err != nil {
			ix.entities = saved
			return fmt.Errorf("apply operation %d of %s: %w", i, inst, err)
		}
	}
	return nil
}

func (ix *Index) apply(op model.Operation, inst model.TransactionInstant) error {
	switch o := op.(type) {
	case model.Put:
		if o.DocHash == "" {
			return fmt.Errorf("put %q: missing document hash", o.Document.ID)
		}
		return ix.writeSpan(o.Document.ID, o.ValidFrom, o.ValidTo, o.DocHash, inst)
	case model.Delete:
		return ix.writeSpan(o.ID, o.ValidFrom, o.ValidTo, "", inst)
	case model.Evict:
		ix.entities.Delete(&entity{id: o.ID})
		return nil
	case model.Match, model.MatchNotExists:
		return nil
	default:
		return fmt.Errorf("unsupported operation type %T", op)
	}
}

// writeSpan covers [from, to) of id with hash (a tombstone when empty).
func (ix *Index) writeSpan(id string, from, to time.Time, hash string, inst model.TransactionInstant) error {
	if id == "" {
		return fmt.Errorf("empty entity id")
	}

	e, ok := ix.entities.Get(&entity{id: id})
	if ok {
		e = e.clone()
	} else {
		e = newEntity(id)
	}

	if from.IsZero() {
		from = model.NormalizeTime(inst.TxTime)
	}
	if to.IsZero() {
		to = e.nextStart(from)
	}
	if !from.Before(to) {
		return fmt.Errorf("entity %q: empty valid-time span [%s, %s)", id, model.FormatTime(from), model.FormatTime(to))
	}

	for _, old := range e.overlapping(from, to) {
		e.current.Delete(old)
		// An entry written earlier by this same transaction never becomes
		// visible, so it is dropped instead of moved to history.
		if old.TxFrom.TxID != inst.TxID {
			closed := old
			closed.TxTo = inst
			e.history.ReplaceOrInsert(closed)
		}
		if old.ValidFrom.Before(from) {
			before := old
			before.ValidTo = from
			before.TxFrom, before.TxTo = inst, OpenInstant
			e.current.ReplaceOrInsert(before)
		}
		if old.ValidTo.After(to) {
			after := old
			after.ValidFrom = to
			after.TxFrom, after.TxTo = inst, OpenInstant
			e.current.ReplaceOrInsert(after)
		}
	}

	e.current.ReplaceOrInsert(Entry{
		EntityID:  id,
		ValidFrom: from,
		ValidTo:   to,
		TxFrom:    inst,
		TxTo:      OpenInstant,
		DocHash:   hash,
	})
	e.record(inst.TxID)
	ix.entities.ReplaceOrInsert(e)
	return nil
}

// nextStart returns the start of the first current entry beginning after
// from, or EndOfTime.
func (e *entity) nextStart(from time.Time) time.Time {
	next := model.EndOfTime
	e.current.AscendGreaterOrEqual(Entry{ValidFrom: from}, func(it Entry) bool {
		if it.ValidFrom.Equal(from) {
			return true
		}
		next = it.ValidFrom
		return false
	})
	return next
}

// overlapping returns the current entries intersecting [from, to), in
// valid-time order.
func (e *entity) overlapping(from, to time.Time) []Entry {
	var out []Entry
	e.current.DescendLessOrEqual(Entry{ValidFrom: from}, func(it Entry) bool {
		if it.ValidFrom.Equal(from) {
			return true
		}
		if it.ValidTo.After(from) {
			out = append(out, it)
		}
		return false
	})
	e.current.AscendRange(Entry{ValidFrom: from}, Entry{ValidFrom: to}, func(it Entry) bool {
		out = append(out, it)
		return true
	})
	return out
}
