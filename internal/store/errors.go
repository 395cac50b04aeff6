package store

import (
	"errors"
	"fmt"

	"github.com/roach88/relq/internal/querysql"
)

// ExecutionError reports that the engine rejected or failed a statement.
// Err is the driver's error, unchanged.
type ExecutionError struct {
	Op      string
	Dialect querysql.Dialect
	SQL     string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed (%s %s): %v", e.Dialect, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsExecutionFailed returns true if err is, or wraps, an ExecutionError.
func IsExecutionFailed(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

func executionFailed(op string, text querysql.QueryText, err error) error {
	return &ExecutionError{Op: op, Dialect: text.Dialect, SQL: text.SQL, Err: err}
}
