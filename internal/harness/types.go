package harness

// TraceEvent is the outcome of one scenario step.
type TraceEvent struct {
	Seq int `json:"seq"`

	// Op is the step operation (listen, notify, fetch, clear, clear_all).
	Op string `json:"op"`

	// Target is the step operand as written in the scenario.
	Target string `json:"target,omitempty"`

	// ListenerID is the listener the step registered or read.
	ListenerID string `json:"listener_id,omitempty"`

	// Status is the schema verdict (PASS/FAIL), NONE for a fetch with
	// nothing observed, or ERROR.
	Status string `json:"status,omitempty"`

	// Value is the dispatch id, rejection payload, notification or status
	// text the step produced.
	Value any `json:"value,omitempty"`

	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	// Listeners is the number of listeners still registered at the end.
	Listeners int `json:"listeners"`
}

// NewResult creates a new passing result.
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

// add appends ev to the trace, assigning the next sequence number.
func (r *Result) add(ev TraceEvent) TraceEvent {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
	return ev
}
