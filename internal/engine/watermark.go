package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/roach88/tempodb/internal/model"
)

// watermark tracks the indexed position of the log and wakes waiters when it
// advances. changed is closed and replaced on every advance.
type watermark struct {
	mu        sync.Mutex
	latest    model.TransactionInstant
	committed []model.TransactionInstant // ascending by id and time
	changed   chan struct{}
	err       error
}

func newWatermark() *watermark {
	return &watermark{changed: make(chan struct{})}
}

// advance records inst as indexed. Called only from the Run loop (and from
// recovery before Run starts).
func (w *watermark) advance(inst model.TransactionInstant, committed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if committed {
		w.committed = append(w.committed, inst)
	}
	if inst.TxID > w.latest.TxID {
		w.latest = inst
	}
	close(w.changed)
	w.changed = make(chan struct{})
}

// fail stops the watermark for good; waiters that are not yet satisfied get
// err.
func (w *watermark) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return
	}
	w.err = err
	close(w.changed)
	w.changed = make(chan struct{})
}

// current returns the latest indexed instant.
func (w *watermark) current() model.TransactionInstant {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// basisAt returns the latest committed instant with TxTime <= txTime, or the
// zero instant if there is none.
func (w *watermark) basisAt(txTime time.Time) model.TransactionInstant {
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sort.Search(len(w.committed), func(i int) bool {
		return w.committed[i].TxTime.After(txTime)
	})
	if i == 0 {
		return model.TransactionInstant{}
	}
	return w.committed[i-1]
}

// latestCommitted returns the latest committed instant.
func (w *watermark) latestCommitted() model.TransactionInstant {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.committed) == 0 {
		return model.TransactionInstant{}
	}
	return w.committed[len(w.committed)-1]
}

// wait blocks until reached(latest) holds, the watermark fails, ctx ends or
// timeout elapses. A non-positive timeout waits without bound.
func (w *watermark) wait(ctx context.Context, timeout time.Duration, reached func(model.TransactionInstant) bool) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		w.mu.Lock()
		latest, changed, err := w.latest, w.changed, w.err
		w.mu.Unlock()

		if reached(latest) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-changed:
		case <-expired:
			return errTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
