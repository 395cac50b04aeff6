package queryir

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes composition errors.
type ErrorCode string

const (
	// ErrCodeInvalidJoin indicates a duplicate join or a join condition
	// that references unknown columns.
	ErrCodeInvalidJoin ErrorCode = "INVALID_JOIN"

	// ErrCodeInvalidProjection indicates a dedupe key that is not a prefix
	// of the ordering, or a projection referencing unknown columns.
	ErrCodeInvalidProjection ErrorCode = "INVALID_PROJECTION"

	// ErrCodeUnsupportedOnDeduplicated indicates a count, column filter or
	// pagination applied directly to a deduplicating query.
	ErrCodeUnsupportedOnDeduplicated ErrorCode = "UNSUPPORTED_ON_DEDUPLICATED"

	// ErrCodeInvalidFilter indicates a filter on an unknown column, a
	// non-scalar literal or an invalid page.
	ErrCodeInvalidFilter ErrorCode = "INVALID_FILTER"

	// ErrCodeInvalidOrdering indicates an ordering on an unknown column.
	ErrCodeInvalidOrdering ErrorCode = "INVALID_ORDERING"

	// ErrCodeInvalidRelation indicates a malformed relation or alias.
	ErrCodeInvalidRelation ErrorCode = "INVALID_RELATION"

	// ErrCodeCountQueryFinal indicates composition on a counting query.
	ErrCodeCountQueryFinal ErrorCode = "COUNT_QUERY_FINAL"
)

// CompositionError is returned by every composition method that rejects
// its input. Clause names the offending clause so the caller can see what
// to change.
type CompositionError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Clause is the offending clause, rendered for humans.
	Clause string

	// Details contains additional context.
	Details map[string]string
}

// Error implements the error interface.
func (e *CompositionError) Error() string {
	if e.Clause != "" {
		return fmt.Sprintf("%s: %s (clause: %s)", e.Code, e.Message, e.Clause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, clause, format string, args ...any) *CompositionError {
	return &CompositionError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Clause:  clause,
	}
}

// CodeOf returns the ErrorCode of a (possibly wrapped) CompositionError,
// or the empty code.
func CodeOf(err error) ErrorCode {
	var ce *CompositionError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsInvalidJoin returns true if the error is an INVALID_JOIN error.
func IsInvalidJoin(err error) bool {
	return CodeOf(err) == ErrCodeInvalidJoin
}

// IsInvalidProjection returns true if the error is an INVALID_PROJECTION error.
func IsInvalidProjection(err error) bool {
	return CodeOf(err) == ErrCodeInvalidProjection
}

// IsUnsupportedOnDeduplicated returns true if the error rejects an
// operation on a deduplicating query.
func IsUnsupportedOnDeduplicated(err error) bool {
	return CodeOf(err) == ErrCodeUnsupportedOnDeduplicated
}

// IsInvalidFilter returns true if the error is an INVALID_FILTER error.
func IsInvalidFilter(err error) bool {
	return CodeOf(err) == ErrCodeInvalidFilter
}

// IsInvalidRelation returns true if the error is an INVALID_RELATION error.
func IsInvalidRelation(err error) bool {
	return CodeOf(err) == ErrCodeInvalidRelation
}

// unsupportedOnDedupe builds the error for the core rule.
func unsupportedOnDedupe(op string, p Projection) *CompositionError {
	e := newError(ErrCodeUnsupportedOnDeduplicated, p.String(),
		"%s is not valid on a deduplicating query; wrap it with AsSubquery first", op)
	e.Details = map[string]string{"operation": op}
	return e
}

func countQueryFinal(op string) *CompositionError {
	return newError(ErrCodeCountQueryFinal, "COUNT(*)", "%s is not valid on a counting query", op)
}
