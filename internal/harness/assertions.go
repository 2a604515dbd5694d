package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/tempodb/internal/model"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s tx=%d %s\n", ev.Step, ev.Outcome, ev.TxID, ev.TxTime)
		}
	}

	return buf.String()
}

// evaluateAssertions runs every assertion and returns the failure messages.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, result *Result) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertEntity:
			err = h.assertEntity(ctx, a, result.Trace)
		case AssertTimeline:
			err = h.assertTimeline(ctx, a, result.Trace)
		case AssertLog:
			err = h.assertLog(ctx, a, result.Trace)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertEntity resolves the entity and compares it with the expected
// attributes (exact match) or absence.
func (h *Harness) assertEntity(ctx context.Context, a Assertion, trace []TraceEvent) error {
	snap, err := h.snapshot(ctx, a)
	if err != nil {
		return err
	}
	doc, ok, err := snap.Entity(ctx, a.ID)
	if err != nil {
		return err
	}

	where := describeSnapshot(a)
	if a.Absent {
		if ok {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("%s absent %s", a.ID, where),
				Actual:   formatDocument(doc),
				Trace:    trace,
			}
		}
		return nil
	}

	want, err := model.NewDocument(a.ID, a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s %s", formatDocument(want), where),
			Actual:   "absent",
			Trace:    trace,
		}
	}
	if !doc.Equal(want) {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("%s %s", formatDocument(want), where),
			Actual:   formatDocument(doc),
			Trace:    trace,
		}
	}
	return nil
}

// assertTimeline counts the versions of the entity.
func (h *Harness) assertTimeline(ctx context.Context, a Assertion, trace []TraceEvent) error {
	snap, err := h.snapshot(ctx, a)
	if err != nil {
		return err
	}
	versions, err := snap.Timeline(ctx, a.ID)
	if err != nil {
		return err
	}
	if len(versions) != a.Count {
		return &AssertionError{
			Type:     AssertTimeline,
			Expected: fmt.Sprintf("%d versions of %s %s", a.Count, a.ID, describeSnapshot(a)),
			Actual:   fmt.Sprintf("%d versions", len(versions)),
			Trace:    trace,
		}
	}
	return nil
}

// assertLog compares the outcomes of every log record in id order.
func (h *Harness) assertLog(ctx context.Context, a Assertion, trace []TraceEvent) error {
	cur, err := h.engine.OpenLogCursor(ctx, 0, false)
	if err != nil {
		return err
	}
	defer cur.Close()

	var got []string
	for cur.Next() {
		if cur.Record().Committed {
			got = append(got, OutcomeCommitted)
		} else {
			got = append(got, OutcomeAborted)
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}

	if strings.Join(got, ",") != strings.Join(a.Outcomes, ",") {
		return &AssertionError{
			Type:     AssertLog,
			Expected: fmt.Sprintf("%v", a.Outcomes),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	return nil
}

func describeSnapshot(a Assertion) string {
	vt := a.ValidTime
	if vt == "" {
		vt = "now"
	}
	tx := "latest"
	if a.AsOfStep > 0 {
		tx = fmt.Sprintf("step %d", a.AsOfStep)
	}
	return fmt.Sprintf("at valid time %s, tx time %s", vt, tx)
}

func formatDocument(doc model.Document) string {
	data, err := model.MarshalCanonical(doc.Attrs)
	if err != nil {
		return fmt.Sprintf("%s <%v>", doc.ID, err)
	}
	return fmt.Sprintf("%s %s", doc.ID, data)
}
