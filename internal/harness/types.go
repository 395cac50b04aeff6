package harness

import (
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step met its expectations.
	Pass bool `json:"pass"`

	// RunID identifies this run in logs and CLI output.
	RunID string `json:"run_id"`

	Steps []StepResult `json:"steps"`

	// Errors contains expectation failures, prefixed with the step name.
	Errors []string `json:"errors,omitempty"`
}

// StepResult records what one step produced.
type StepResult struct {
	Name  string `json:"name"`
	Query string `json:"query"`
	Op    string `json:"op"`

	// ErrorCode is the composition error code, EXECUTION_FAILED, or empty.
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`

	// Renders holds the query text for every dialect, in dialect order.
	Renders []querysql.QueryText `json:"renders,omitempty"`

	// Warnings are the Validate warnings for the composed query.
	Warnings []string `json:"warnings,omitempty"`

	Count *int64   `json:"count,omitempty"`
	Rows  []ir.Row `json:"-"`

	// RowsFingerprint identifies the ordered rows a rows step returned,
	// so runs against different engines can be compared.
	RowsFingerprint string `json:"rows_fingerprint,omitempty"`

	// PrimaryKey is the base relation's primary key column, which
	// expect_ids are matched against.
	PrimaryKey string `json:"-"`
}

// NewResult creates a new passing result.
func NewResult(runID string) *Result {
	return &Result{
		Pass:   true,
		RunID:  runID,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Render returns the step's query text for a dialect.
func (s StepResult) Render(d querysql.Dialect) (querysql.QueryText, bool) {
	for _, t := range s.Renders {
		if t.Dialect == d {
			return t, true
		}
	}
	return querysql.QueryText{}, false
}
