package harness

// Trace event types.
const (
	EventInvocation = "invocation"
	EventCompletion = "completion"

	// EventRecord is a solve record write observed at the store boundary.
	EventRecord = "record"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Type       string         `json:"type"`
	Action     string         `json:"action,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	OutputCase string         `json:"output_case,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	Seq        int64          `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds invocations, record writes and completions in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddInvocationTrace adds a flow step invocation to the trace.
func (r *Result) AddInvocationTrace(action string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventInvocation,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddRecordTrace adds a solve record write to the trace.
func (r *Result) AddRecordTrace(action string, args map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:   EventRecord,
		Action: action,
		Args:   args,
		Seq:    seq,
	})
}

// AddCompletionTrace adds the outcome of a flow step to the trace.
func (r *Result) AddCompletionTrace(outputCase string, result map[string]any, seq int64) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventCompletion,
		OutputCase: outputCase,
		Result:     result,
		Seq:        seq,
	})
}
