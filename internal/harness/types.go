package harness

import "github.com/roach88/initiative/internal/value"

// Step outcomes recorded in the trace.
const (
	OutcomeOK     = "ok"
	OutcomeError  = "error"
	OutcomeFailed = "failed"
)

// TraceEvent is one entry of a scenario trace: a step the scenario ran or
// a delivery attempt the transport saw.
type TraceEvent struct {
	Seq     int64        `json:"seq"`
	Step    string       `json:"step"`
	Args    value.Object `json:"args,omitempty"`
	Outcome string       `json:"outcome"`
	Result  value.Object `json:"result,omitempty"`
}

// Object renders the event for canonical encoding.
func (e TraceEvent) Object() value.Object {
	obj := value.ObjectOf(
		value.O("seq", value.Int(e.Seq)),
		value.O("step", value.String(e.Step)),
		value.O("outcome", value.String(e.Outcome)),
	)
	if len(e.Args) > 0 {
		obj["args"] = e.Args
	}
	if len(e.Result) > 0 {
		obj["result"] = e.Result
	}
	return obj
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds steps and delivery attempts in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed expectation. Empty if Pass is true.
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

// AddTrace appends an event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
