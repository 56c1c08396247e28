package harness

import "github.com/roach88/windi/internal/canon"

// Outcome cases recorded in the trace.
const (
	CaseApproved           = "approved"
	CasePolicyViolation    = "policy_violation"
	CaseIntegrityViolation = "integrity_violation"
	CaseInvariantViolation = "invariant_violation"
	CaseNotConfigured      = "not_configured"
	CaseValid              = "valid"
	CaseScored             = "scored"
	CaseAppended           = "appended"
	CaseFound              = "found"
	CaseNotFound           = "not_found"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step   int          `json:"step"`
	Op     string       `json:"op"`
	Args   canon.Object `json:"args"`
	Case   string       `json:"case"`
	Kind   string       `json:"kind,omitempty"`
	Result canon.Object `json:"result"`
}

// Value renders the event for canonical serialization.
func (e TraceEvent) Value() canon.Object {
	obj := canon.Object{
		"step":   canon.Int(e.Step),
		"op":     canon.String(e.Op),
		"args":   orEmpty(e.Args),
		"case":   canon.String(e.Case),
		"result": orEmpty(e.Result),
	}
	if e.Kind != "" {
		obj["kind"] = canon.String(e.Kind)
	}
	return obj
}

func orEmpty(o canon.Object) canon.Object {
	if o == nil {
		return canon.Object{}
	}
	return o
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every executed step in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an executed step.
func (r *Result) AddTrace(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
