package harness

import "github.com/roach88/bwdedup/internal/dedup"

// Result is the outcome of running one scenario.
type Result struct {
	// Pass is true when every expectation and built-in check held.
	Pass bool `json:"pass"`

	// Errors describes each failed check. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Outcome is the engine result. Nil when the policy was rejected.
	Outcome *dedup.Result `json:"-"`

	// PolicyError is the rejection message, if any.
	PolicyError string `json:"policy_error,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError records a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
