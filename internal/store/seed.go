package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/relq/internal/catalog"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/querysql"
)

// Fixture is a set of rows for one catalog table.
type Fixture struct {
	Table string
	Rows  []ir.Row
}

// Seed creates every catalog table and inserts the fixture rows, in
// order. The target database is expected to be empty.
func Seed(ctx context.Context, exec Executor, cat *catalog.Catalog, fixtures []Fixture) error {
	d := exec.Dialect()

	for _, t := range cat.Tables() {
		text, err := querysql.RenderCreateTable(t.Def(), d)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		if err := exec.Exec(ctx, text); err != nil {
			return fmt.Errorf("seed: create table %s: %w", t.Name, err)
		}
	}

	for _, f := range fixtures {
		t, ok := cat.Table(f.Table)
		if !ok {
			return fmt.Errorf("seed: fixture for unknown table %q", f.Table)
		}
		cols := t.ColumnNames()
		for i, row := range f.Rows {
			for _, c := range row.Columns {
				if !slices.Contains(cols, c) {
					return fmt.Errorf("seed: %s row %d: unknown column %q", f.Table, i, c)
				}
			}
			text, err := querysql.RenderInsert(t.Name, row, d)
			if err != nil {
				return fmt.Errorf("seed: %w", err)
			}
			if err := exec.Exec(ctx, text); err != nil {
				return fmt.Errorf("seed: %s row %d: %w", f.Table, i, err)
			}
		}
	}
	return nil
}
