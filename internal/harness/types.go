package harness

// Step outcomes recorded in the trace.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeMalformed = "malformed"
)

// TraceEvent records the outcome of one scenario step.
// Malformed steps consume no instant, so TxID and TxTime are empty.
type TraceEvent struct {
	Step       int    `json:"step"`
	Outcome    string `json:"outcome"`
	TxID       int64  `json:"tx_id,omitempty"`
	TxTime     string `json:"tx_time,omitempty"`
	Operations int    `json:"ops"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion holds.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends a step event.
func (r *Result) addTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
