package harness

import "encoding/json"

// TraceEvent is one recorded emission.
type TraceEvent struct {
	Seq    int64           `json:"seq"`
	Source string          `json:"source"`
	Value  json.RawMessage `json:"value"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step ran and every assertion held.
	Pass bool `json:"pass"`

	// RunID identifies the recorded run.
	RunID string `json:"run_id"`

	// Trace contains all recorded emissions in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// EventsFor returns the trace events of one source.
func (r *Result) EventsFor(source string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Source == source {
			out = append(out, ev)
		}
	}
	return out
}
