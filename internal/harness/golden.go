package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tempodb/internal/model"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"step":    event.Step,
			"outcome": event.Outcome,
			"ops":     event.Operations,
		}
		if event.TxID != 0 {
			eventMap["tx_id"] = event.TxID
		}
		if event.TxTime != "" {
			eventMap["tx_time"] = event.TxTime
		}
		traceList[i] = eventMap
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// MarshalTrace renders a scenario's trace as canonical JSON, the golden
// file format.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snapshot := &TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return model.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the trace separately.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
