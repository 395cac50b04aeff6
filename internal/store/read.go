package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
)

// Rows implements Executor.
//
// Returns an empty slice (not nil) when the statement matches no rows.
func (s *Store) Rows(ctx context.Context, text querysql.QueryText) ([]ir.Row, error) {
	if err := checkDialect(s.dialect, text); err != nil {
		return nil, err
	}
	logStatement(s.logger, "rows", text)

	rows, err := s.db.QueryContext(ctx, text.SQL, text.Args()...)
	if err != nil {
		return nil, executionFailed("rows", text, err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, executionFailed("rows", text, err)
	}
	return out, nil
}

// Count implements Executor.
func (s *Store) Count(ctx context.Context, text querysql.QueryText) (int64, error) {
	if err := checkDialect(s.dialect, text); err != nil {
		return 0, err
	}
	logStatement(s.logger, "count", text)

	var n int64
	if err := s.db.QueryRowContext(ctx, text.SQL, text.Args()...).Scan(&n); err != nil {
		return 0, executionFailed("count", text, err)
	}
	return n, nil
}

// Exec implements Executor.
func (s *Store) Exec(ctx context.Context, text querysql.QueryText) error {
	if err := checkDialect(s.dialect, text); err != nil {
		return err
	}
	logStatement(s.logger, "exec", text)

	if _, err := s.db.ExecContext(ctx, text.SQL, text.Args()...); err != nil {
		return executionFailed("exec", text, err)
	}
	return nil
}

// scanRows converts every remaining row to an ir.Row.
func scanRows(rows *sql.Rows) ([]ir.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := []ir.Row{}
	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row, err := toRow(columns, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func toRow(columns []string, raw []any) (ir.Row, error) {
	values := make([]ir.IRValue, len(raw))
	for i, v := range raw {
		val, err := ir.FromAny(v)
		if err != nil {
			return ir.Row{}, fmt.Errorf("column %s: %w", columns[i], err)
		}
		values[i] = val
	}
	return ir.Row{Columns: append([]string(nil), columns...), Values: values}, nil
}
