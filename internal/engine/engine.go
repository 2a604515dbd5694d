package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tempodb/internal/index"
	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/notify"
	"github.com/roach88/tempodb/internal/store"
)

// DefaultAwaitTimeout bounds AwaitIndexed, Sync and snapshot waits when the
// caller passes no timeout.
const DefaultAwaitTimeout = 10 * time.Second

// Engine is the single-writer transaction processor.
//
// Thread-safety model:
//   - Submit(), AwaitIndexed(), Sync(), Snapshot(), Listen(): safe from any
//     goroutine
//   - Run(): must be called from exactly one goroutine
//
// The engine owns the index and the listener registry. It does not own the
// store: callers close it after Run returns.
type Engine struct {
	store    *store.Store
	index    *index.Index
	registry *notify.Registry
	clock    Clock
	queue    *submissionQueue
	marks    *watermark

	awaitTimeout time.Duration
	registryOpts []notify.Option

	// submitMu keeps reservation and enqueue in the same order, so the Run
	// loop sees submissions in id order.
	submitMu sync.Mutex
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithClock sets the time source.
//
// Default: WallClock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithAwaitTimeout sets the default bound for AwaitIndexed, Sync and
// snapshot waits.
//
// Default: 10s (DefaultAwaitTimeout).
func WithAwaitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.awaitTimeout = d
	}
}

// WithRegistryOptions configures the listener registry (e.g. handle ids).
func WithRegistryOptions(opts ...notify.Option) Option {
	return func(e *Engine) {
		e.registryOpts = append(e.registryOpts, opts...)
	}
}

// Open creates an Engine over s and recovers its state: committed log
// records are replayed into the index, and submissions left pending by a
// previous process are queued for the Run loop.
func Open(ctx context.Context, s *store.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:        s,
		index:        index.New(),
		clock:        WallClock{},
		queue:        newSubmissionQueue(),
		marks:        newWatermark(),
		awaitTimeout: DefaultAwaitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registry = notify.NewRegistry(e.registryOpts...)

	if err := e.restore(ctx); err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	return e, nil
}

// Submit validates ops, reserves the next instant and durably records the
// submission. It returns as soon as the instant is reserved; use
// AwaitIndexed to wait for the outcome.
//
// Malformed operations fail with MALFORMED_OPERATION and consume no id. A
// store failure is a LOG_APPEND_FAILURE.
func (e *Engine) Submit(ctx context.Context, ops []model.Operation) (model.TransactionInstant, error) {
	valid, err := model.ValidateOperations(ops)
	if err != nil {
		return model.TransactionInstant{}, err
	}

	e.submitMu.Lock()
	defer e.submitMu.Unlock()

	if e.queue.Closed() {
		return model.TransactionInstant{}, ErrStopped
	}

	inst, err := e.store.Reserve(ctx, valid, e.clock.Now())
	if err != nil {
		return model.TransactionInstant{}, err
	}

	if e.queue.Enqueue(store.Submission{Instant: inst, Operations: valid}) {
		pendingSubmissions.Inc()
	} else {
		// Stopped between the check and the enqueue: the submission is
		// durable and resolves on the next Open.
		slog.Warn("engine stopped with reserved submission", "tx_id", inst.TxID)
	}

	slog.Debug("submission reserved", "tx_id", inst.TxID, "tx_time", inst.TxTime, "ops", len(valid))
	return inst, nil
}

// Run starts the single-writer loop.
// Blocks until context is cancelled, Stop() is called and the queue drained,
// or a log append or index write fails.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "indexed_tx_id", e.marks.current().TxID, "pending", e.queue.Len())

	for {
		sub, ok := e.queue.TryDequeue()
		if ok {
			pendingSubmissions.Dec()
			if err := e.process(ctx, sub); err != nil {
				slog.Error("engine stopping: transaction processing failed",
					"tx_id", sub.Instant.TxID,
					"error", err,
				)
				e.marks.fail(err)
				e.queue.Close()
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			e.marks.fail(ErrStopped)
			return ctx.Err()

		case <-e.queue.Wait():
			if e.queue.Len() == 0 && e.queue.Closed() {
				slog.Info("engine stopping: queue closed")
				e.marks.fail(ErrStopped)
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine. Submissions already queued are
// processed before Run returns.
func (e *Engine) Stop() {
	e.submitMu.Lock()
	defer e.submitMu.Unlock()
	e.queue.Close()
}

// process resolves one submission: evaluate, log, index, notify.
// CRITICAL: Called only from Run() goroutine - single-writer guarantee.
func (e *Engine) process(ctx context.Context, sub store.Submission) error {
	start := time.Now()

	// Everything indexed so far precedes sub, so the current view at the
	// latest indexed instant is the state immediately before it.
	basis := e.marks.current().TxID
	committed, reason := evaluate(e.index.View(), basis, sub)

	rec := model.TransactionRecord{Instant: sub.Instant, Committed: committed}
	if committed {
		rec.Operations = sub.Operations
	}
	if err := e.store.Append(ctx, rec); err != nil {
		return err
	}

	if committed {
		if err := e.index.ApplyTransaction(sub.Operations, sub.Instant); err != nil {
			return fmt.Errorf("index %s: %w", sub.Instant, err)
		}
		transactionsTotal.WithLabelValues(outcomeCommitted).Inc()
		slog.Info("transaction committed", "tx_id", sub.Instant.TxID, "ops", len(sub.Operations))
	} else {
		transactionsTotal.WithLabelValues(outcomeAborted).Inc()
		slog.Info("transaction aborted", "tx_id", sub.Instant.TxID, "reason", reason)
	}

	e.marks.advance(sub.Instant, committed)
	indexedTxID.Set(float64(sub.Instant.TxID))
	indexedEntities.Set(float64(e.index.Len()))

	ev := notify.Event{Committed: committed, Instant: sub.Instant}
	if committed {
		ev.Operations = sub.Operations
	}
	e.registry.Notify(ctx, ev)

	transactionDuration.Observe(time.Since(start).Seconds())
	return nil
}

// evaluate checks the predicates of sub against view as of basis. Predicates
// without a valid time are evaluated at the transaction's own tx time. The
// first failing predicate aborts; its description is returned.
func evaluate(view *index.View, basis int64, sub store.Submission) (bool, string) {
	for i, op := range sub.Operations {
		switch o := op.(type) {
		case model.Match:
			got := resolveHash(view, o.ID, o.ValidTime, basis, sub.Instant)
			if got != o.ExpectedHash {
				return false, fmt.Sprintf("operation %d: match %q failed", i, o.ID)
			}
		case model.MatchNotExists:
			if resolveHash(view, o.ID, o.ValidTime, basis, sub.Instant) != "" {
				return false, fmt.Sprintf("operation %d: %q exists", i, o.ID)
			}
		}
	}
	return true, ""
}

// resolveHash returns the content address visible for id, or "" when the
// entity is absent or deleted.
func resolveHash(view *index.View, id string, validTime time.Time, basis int64, inst model.TransactionInstant) string {
	if validTime.IsZero() {
		validTime = inst.TxTime
	}
	entry, ok := view.Resolve(id, validTime, basis)
	if !ok || entry.IsTombstone() {
		return ""
	}
	return entry.DocHash
}

// AwaitIndexed blocks until inst has been indexed (committed or aborted).
// A non-positive timeout uses the engine default. Exceeding it is a
// TIMEOUT_EXCEEDED error; the caller may retry with a longer timeout.
func (e *Engine) AwaitIndexed(ctx context.Context, inst model.TransactionInstant, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.awaitTimeout
	}
	err := e.marks.wait(ctx, timeout, func(latest model.TransactionInstant) bool {
		return latest.TxID >= inst.TxID
	})
	if errors.Is(err, errTimeout) {
		waitTimeoutsTotal.WithLabelValues("await").Inc()
		te := timeoutError(timeout, "await %s", inst)
		te.TxID = inst.TxID
		return te
	}
	return err
}

// Sync waits until every submission reserved so far has been indexed and
// returns the latest indexed instant.
func (e *Engine) Sync(ctx context.Context, timeout time.Duration) (model.TransactionInstant, error) {
	target := e.store.LastInstant()
	if err := e.AwaitIndexed(ctx, target, timeout); err != nil {
		return model.TransactionInstant{}, err
	}
	return e.LatestIndexed(), nil
}

// OpenLogCursor returns a cursor over log records strictly after afterTxID.
// The caller must Close it.
func (e *Engine) OpenLogCursor(ctx context.Context, afterTxID int64, includeOperations bool) (*store.Cursor, error) {
	return e.store.OpenCursor(ctx, afterTxID, includeOperations)
}

// Listen registers a listener for indexed transactions.
func (e *Engine) Listen(l notify.Listener, cfg notify.Config) *notify.Handle {
	return e.registry.Register(l, cfg)
}

// LatestSubmitted returns the latest reserved instant.
func (e *Engine) LatestSubmitted() model.TransactionInstant {
	return e.store.LastInstant()
}

// LatestIndexed returns the latest indexed instant, committed or aborted.
func (e *Engine) LatestIndexed() model.TransactionInstant {
	return e.marks.current()
}
