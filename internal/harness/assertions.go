package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// AssertionError describes one unmet expectation.
type AssertionError struct {
	Type     string // expect_error, expect_count, expect_ids, expect_rows
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// checkStep compares a step result with the step's expectations and
// returns one message per failure.
func checkStep(step Step, sr StepResult) []string {
	var failures []string
	fail := func(err error) { failures = append(failures, err.Error()) }

	if step.ExpectError != "" {
		if sr.ErrorCode != step.ExpectError {
			actual := "no error"
			if sr.Error != "" {
				actual = sr.Error
			}
			fail(&AssertionError{Type: "expect_error", Expected: step.ExpectError, Actual: actual})
		}
		return failures
	}
	if sr.Error != "" {
		return []string{"unexpected error: " + sr.Error}
	}

	if step.ExpectCount != nil {
		if err := assertCount(*step.ExpectCount, sr.Count); err != nil {
			fail(err)
		}
	}
	if step.ExpectIDs != nil {
		if err := assertIDs(*step.ExpectIDs, sr.PrimaryKey, sr.Rows); err != nil {
			fail(err)
		}
	}
	if step.ExpectRows != nil {
		if err := assertRows(*step.ExpectRows, sr.Rows); err != nil {
			fail(err)
		}
	}
	return failures
}

func assertCount(expected int64, actual *int64) error {
	if actual == nil {
		return &AssertionError{Type: "expect_count", Expected: fmt.Sprint(expected), Actual: "no count"}
	}
	if *actual != expected {
		return &AssertionError{Type: "expect_count", Expected: fmt.Sprint(expected), Actual: fmt.Sprint(*actual)}
	}
	return nil
}

// assertIDs compares the primary key column of each row, in order.
func assertIDs(expected []any, pk string, rows []ir.Row) error {
	want, err := irValues(expected)
	if err != nil {
		return fmt.Errorf("expect_ids: %w", err)
	}
	got := make([]ir.IRValue, len(rows))
	for i, r := range rows {
		v, ok := r.Get(pk)
		if !ok {
			return &AssertionError{Type: "expect_ids", Expected: "column " + pk, Actual: r.String()}
		}
		got[i] = v
	}
	if !ir.Equal(ir.IRArray(want), ir.IRArray(got)) {
		return &AssertionError{Type: "expect_ids", Expected: ir.Format(ir.IRArray(want)), Actual: ir.Format(ir.IRArray(got))}
	}
	return nil
}

// assertRows compares rows in order. Only the columns named in each
// expected row are checked.
func assertRows(expected []map[string]any, rows []ir.Row) error {
	if len(expected) != len(rows) {
		return &AssertionError{
			Type:     "expect_rows",
			Expected: fmt.Sprintf("%d rows", len(expected)),
			Actual:   fmt.Sprintf("%d rows %s", len(rows), formatRows(rows)),
		}
	}
	for i, want := range expected {
		for _, col := range sortedNames(want) {
			wv, err := ir.FromAny(want[col])
			if err != nil {
				return fmt.Errorf("expect_rows[%d].%s: %w", i, col, err)
			}
			gv, ok := rows[i].Get(col)
			if !ok {
				return &AssertionError{
					Type:     "expect_rows",
					Expected: fmt.Sprintf("row %d column %s", i, col),
					Actual:   rows[i].String(),
				}
			}
			if !ir.Equal(wv, gv) {
				return &AssertionError{
					Type:     "expect_rows",
					Expected: fmt.Sprintf("row %d %s=%s", i, col, ir.Format(wv)),
					Actual:   rows[i].String(),
				}
			}
		}
	}
	return nil
}

func formatRows(rows []ir.Row) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = r.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
