package harness

import (
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

// BatchOutcome is what one submission produced: a response or a
// batch-level error code, never both.
type BatchOutcome struct {
	Error    string            `json:"error,omitempty"`
	Response *ir.BatchResponse `json:"response,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Outcomes holds one entry per batch, in submission order.
	// Used for verdict assertions and golden comparison.
	Outcomes []BatchOutcome `json:"outcomes"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stats is the size of the final store.
	Stats store.Stats `json:"-"`

	// Digest is the content hash of the final store.
	Digest string `json:"digest"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []BatchOutcome{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CountVerdicts counts results with status across all outcomes.
func (r *Result) CountVerdicts(status ir.VerdictStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Response == nil {
			continue
		}
		for _, res := range o.Response.Results {
			if res.Status == status {
				n++
			}
		}
	}
	return n
}
