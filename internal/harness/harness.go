package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/tempodb/internal/config"
	"github.com/roach88/tempodb/internal/docstore"
	"github.com/roach88/tempodb/internal/engine"
	"github.com/roach88/tempodb/internal/model"
	"github.com/roach88/tempodb/internal/store"
	"github.com/roach88/tempodb/internal/testutil"
	"github.com/roach88/tempodb/internal/txfile"
)

// stepTimeout bounds the wait for each step to be indexed.
const stepTimeout = 10 * time.Second

// Harness is the test execution engine.
// It runs scenarios against a fresh store with a deterministic clock.
type Harness struct {
	engine *engine.Engine
	clock  *testutil.FakeClock

	// instants holds the reserved instant of each step (zero if malformed).
	instants []model.TransactionInstant
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database (and a temporary bolt file if asked)
// 2. Open the engine with a deterministic clock and start its loop
// 3. Submit each step and wait for it to be indexed
// 4. Record outcomes from the log and check step expectations
// 5. Evaluate assertions and return the result
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	var opts []store.Option
	if scenario.DocumentStore == config.DocumentStoreBolt {
		dir, err := os.MkdirTemp("", "tempodb-harness-")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(dir)

		bolt, err := docstore.OpenBoltDB(filepath.Join(dir, "bodies.bolt"), docstore.WithNoSync(true))
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		opts = append(opts, store.WithDocumentStore(bolt))
	}

	st, err := store.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := testutil.Epoch
	if scenario.Clock.Start != "" {
		start, err = model.ParseTime(scenario.Clock.Start)
		if err != nil {
			return nil, fmt.Errorf("clock.start: %w", err)
		}
	}
	step := scenario.Clock.Step
	if step == 0 {
		step = time.Second
	}
	clock := testutil.NewFakeClock(start, step)

	eng, err := engine.Open(ctx, st, engine.WithClock(clock), engine.WithAwaitTimeout(stepTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(runCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	h := &Harness{engine: eng, clock: clock}
	result := NewResult()

	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	for _, errMsg := range h.evaluateAssertions(ctx, scenario.Assertions, result) {
		result.AddError(errMsg)
	}

	return result, nil
}

// executeSteps submits every step, then fills in outcomes from the log.
func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	h.instants = make([]model.TransactionInstant, len(steps))

	for i, step := range steps {
		if step.Advance > 0 {
			h.clock.Advance(step.Advance)
		}

		ops, err := txfile.DecodeOperations(step.Operations)
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		inst, err := h.engine.Submit(ctx, ops)
		if model.IsMalformed(err) {
			result.addTrace(TraceEvent{Step: i + 1, Outcome: OutcomeMalformed, Operations: len(ops)})
			continue
		}
		if err != nil {
			return fmt.Errorf("step %d: submit: %w", i+1, err)
		}
		if err := h.engine.AwaitIndexed(ctx, inst, stepTimeout); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}

		h.instants[i] = inst
		result.addTrace(TraceEvent{
			Step:       i + 1,
			TxID:       inst.TxID,
			TxTime:     model.FormatTime(inst.TxTime),
			Operations: len(ops),
		})
	}

	outcomes, err := h.logOutcomes(ctx)
	if err != nil {
		return err
	}

	for i := range result.Trace {
		ev := &result.Trace[i]
		if ev.Outcome == "" {
			if outcomes[ev.TxID] {
				ev.Outcome = OutcomeCommitted
			} else {
				ev.Outcome = OutcomeAborted
			}
		}
		if want := steps[ev.Step-1].Expect; want != "" && want != ev.Outcome {
			result.AddError(fmt.Sprintf("step %d: expected %s, got %s", ev.Step, want, ev.Outcome))
		}
	}
	return nil
}

// logOutcomes reads the committed flag of every log record.
func (h *Harness) logOutcomes(ctx context.Context) (map[int64]bool, error) {
	cur, err := h.engine.OpenLogCursor(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("open log cursor: %w", err)
	}
	defer cur.Close()

	outcomes := make(map[int64]bool)
	for cur.Next() {
		rec := cur.Record()
		outcomes[rec.Instant.TxID] = rec.Committed
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return outcomes, nil
}

// snapshot opens a snapshot for an assertion's pair.
func (h *Harness) snapshot(ctx context.Context, a Assertion) (*engine.Snapshot, error) {
	var opts engine.SnapshotOptions
	if a.ValidTime != "" {
		vt, err := model.ParseTime(a.ValidTime)
		if err != nil {
			return nil, err
		}
		opts.ValidTime = vt
	}
	if a.AsOfStep > 0 {
		inst := h.instants[a.AsOfStep-1]
		if inst.IsZero() {
			return nil, fmt.Errorf("as_of_step %d was not submitted", a.AsOfStep)
		}
		opts.TxTime = inst.TxTime
	}
	return h.engine.Snapshot(ctx, opts)
}
