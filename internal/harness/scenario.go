package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tempodb/internal/config"
	"github.com/roach88/tempodb/internal/model"
)

// Scenario defines a bitemporal test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock configures the deterministic clock. Defaults: testutil.Epoch,
	// one second per reading.
	Clock ClockSpec `yaml:"clock,omitempty"`

	// DocumentStore selects the body backend: sqlite (default) or bolt.
	DocumentStore string `yaml:"document_store,omitempty"`

	// Steps are submitted in order; each is awaited before the next.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: entity, timeline, log
	Assertions []Assertion `yaml:"assertions"`
}

// ClockSpec configures the scenario clock.
type ClockSpec struct {
	Start string        `yaml:"start,omitempty"`
	Step  time.Duration `yaml:"step,omitempty"`
}

// Step submits one transaction.
type Step struct {
	// Advance moves the clock forward before the submission.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Operations use the transaction file shape (see package txfile).
	Operations []any `yaml:"operations"`

	// Expect is the expected outcome: committed, aborted or malformed.
	// Empty means no check.
	Expect string `yaml:"expect,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "entity": resolve ID and compare with Expect (or Absent)
	// - "timeline": count the versions of ID
	// - "log": compare the outcomes of all log records in order
	Type string `yaml:"type"`

	// ID is the entity (entity, timeline).
	ID string `yaml:"id,omitempty"`

	// ValidTime pins the snapshot's valid time (default: now).
	ValidTime string `yaml:"valid_time,omitempty"`

	// AsOfStep pins the snapshot's transaction time to that of the given
	// 1-based step (default: latest).
	AsOfStep int `yaml:"as_of_step,omitempty"`

	// Expect contains the expected attributes (entity). Exact match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects the entity to resolve as absent (entity).
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of versions (timeline).
	Count int `yaml:"count,omitempty"`

	// Outcomes are the expected log outcomes in id order (log).
	Outcomes []string `yaml:"outcomes,omitempty"`
}

// Assertion type constants.
const (
	AssertEntity   = "entity"
	AssertTimeline = "timeline"
	AssertLog      = "log"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and assertion shapes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if s.Clock.Start != "" {
		if _, err := model.ParseTime(s.Clock.Start); err != nil {
			return fmt.Errorf("clock.start: %w", err)
		}
	}
	if s.Clock.Step < 0 {
		return fmt.Errorf("clock.step must be non-negative")
	}
	switch s.DocumentStore {
	case "", config.DocumentStoreSQLite, config.DocumentStoreBolt:
	default:
		return fmt.Errorf("unknown document_store %q", s.DocumentStore)
	}

	for i, step := range s.Steps {
		switch step.Expect {
		case "", OutcomeCommitted, OutcomeAborted, OutcomeMalformed:
		default:
			return fmt.Errorf("steps[%d]: unknown expect %q", i, step.Expect)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, len(s.Steps)); err != nil {
			return err
		}
	}

	return nil
}

func validateAssertion(a Assertion, index, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.AsOfStep < 0 || a.AsOfStep > steps {
		return fmt.Errorf("assertions[%d]: as_of_step %d out of range", index, a.AsOfStep)
	}
	if a.ValidTime != "" {
		if _, err := model.ParseTime(a.ValidTime); err != nil {
			return fmt.Errorf("assertions[%d]: valid_time: %w", index, err)
		}
	}

	switch a.Type {
	case AssertEntity:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for entity", index)
		}
		if a.Absent == (a.Expect != nil) {
			return fmt.Errorf("assertions[%d]: exactly one of expect and absent is required for entity", index)
		}
	case AssertTimeline:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for timeline", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for timeline", index)
		}
	case AssertLog:
		for _, o := range a.Outcomes {
			if o != OutcomeCommitted && o != OutcomeAborted {
				return fmt.Errorf("assertions[%d]: unknown log outcome %q", index, o)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
