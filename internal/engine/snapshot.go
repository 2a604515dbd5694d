package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/tempodb/internal/index"
	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/store"
)

// SnapshotOptions pins a snapshot. Zero values mean defaults.
type SnapshotOptions struct {
	// ValidTime defaults to the later of the clock's now and the basis
	// transaction time.
	ValidTime time.Time

	// TxTime defaults to the latest indexed transaction. A time beyond it
	// blocks until a transaction with a tx time at or after it is indexed,
	// and until every reserved transaction sharing that tx time is indexed.
	TxTime time.Time

	// Timeout bounds that wait; zero uses the engine default.
	Timeout time.Duration
}

// Snapshot is an immutable read-only view pinned to a (valid time,
// transaction time) pair. It is safe for concurrent use; repeated reads
// return identical results regardless of later submissions.
type Snapshot struct {
	view      *index.View
	docs      store.DocumentStore
	validTime time.Time
	txTime    time.Time
	basis     model.TransactionInstant

	mu     sync.Mutex
	loaded map[string]entityResult
}

type entityResult struct {
	doc model.Document
	ok  bool
}

// Version is one entry of an entity timeline.
type Version struct {
	ValidFrom time.Time
	ValidTo   time.Time
	TxFrom    model.TransactionInstant

	// Document is nil for a deletion, or when the body has been evicted.
	Document *model.Document
	DocHash  string
}

// Deleted reports whether the version records a deletion.
func (v Version) Deleted() bool {
	return v.DocHash == ""
}

// Snapshot returns a snapshot pinned per opts.
//
// When opts.TxTime is later than the latest indexed transaction, Snapshot
// waits for the log to reach it; exceeding the timeout is a
// TIMEOUT_EXCEEDED error.
func (e *Engine) Snapshot(ctx context.Context, opts SnapshotOptions) (*Snapshot, error) {
	txTime := model.NormalizeTime(opts.TxTime)

	// Every instant reserved so far with a tx time at or before txTime must
	// be indexed first. Tx times never decrease with ids, so that holds once
	// the watermark passes txTime or reaches the last reservation.
	reserved := e.store.LastInstant()
	reached := func(latest model.TransactionInstant) bool {
		if latest.TxTime.Before(txTime) {
			return false
		}
		return latest.TxTime.After(txTime) || latest.TxID >= reserved.TxID
	}

	if !txTime.IsZero() && !reached(e.marks.current()) {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = e.awaitTimeout
		}
		err := e.marks.wait(ctx, timeout, reached)
		if errors.Is(err, errTimeout) {
			waitTimeoutsTotal.WithLabelValues("snapshot").Inc()
			return nil, timeoutError(timeout, "snapshot at tx time %s", model.FormatTime(txTime))
		}
		if err != nil {
			return nil, err
		}
	}

	// The basis is read before the view: the index is mutated before the
	// watermark advances, so the view always contains the basis.
	var basis model.TransactionInstant
	if txTime.IsZero() {
		basis = e.marks.latestCommitted()
		txTime = e.marks.current().TxTime
	} else {
		basis = e.marks.basisAt(txTime)
	}
	view := e.index.View()

	validTime := model.NormalizeTime(opts.ValidTime)
	if validTime.IsZero() {
		validTime = e.clock.Now()
		if validTime.Before(basis.TxTime) {
			validTime = basis.TxTime
		}
		validTime = model.NormalizeTime(validTime)
	}

	return &Snapshot{
		view:      view,
		docs:      e.store.Documents(),
		validTime: validTime,
		txTime:    txTime,
		basis:     basis,
		loaded:    make(map[string]entityResult),
	}, nil
}

// ValidTime returns the valid time the snapshot resolves at.
func (s *Snapshot) ValidTime() time.Time { return s.validTime }

// TxTime returns the requested (or defaulted) transaction time.
func (s *Snapshot) TxTime() time.Time { return s.txTime }

// Basis returns the latest committed instant visible to the snapshot.
func (s *Snapshot) Basis() model.TransactionInstant { return s.basis }

// Entity resolves id at the snapshot's pair. A tombstone, an unknown or
// evicted entity, and an evicted body all resolve as absent.
func (s *Snapshot) Entity(ctx context.Context, id string) (model.Document, bool, error) {
	s.mu.Lock()
	if r, ok := s.loaded[id]; ok {
		s.mu.Unlock()
		return r.doc, r.ok, nil
	}
	s.mu.Unlock()

	var res entityResult
	entry, found := s.view.Resolve(id, s.validTime, s.basis.TxID)
	if found && !entry.IsTombstone() {
		doc, ok, err := s.docs.Document(ctx, entry.DocHash)
		if err != nil {
			return model.Document{}, false, err
		}
		res = entityResult{doc: doc, ok: ok}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.loaded[id]; ok {
		return r.doc, r.ok, nil
	}
	s.loaded[id] = res
	return res.doc, res.ok, nil
}

// Timeline lists every version of id visible at the snapshot's transaction
// time, ordered by valid time.
func (s *Snapshot) Timeline(ctx context.Context, id string) ([]Version, error) {
	entries := s.view.Timeline(id, s.basis.TxID)
	out := make([]Version, 0, len(entries))
	for _, entry := range entries {
		v := Version{
			ValidFrom: entry.ValidFrom,
			ValidTo:   entry.ValidTo,
			TxFrom:    entry.TxFrom,
			DocHash:   entry.DocHash,
		}
		if !entry.IsTombstone() {
			doc, ok, err := s.docs.Document(ctx, entry.DocHash)
			if err != nil {
				return nil, err
			}
			if ok {
				v.Document = &doc
			}
		}
		out = append(out, v)
	}
	return out, nil
}
