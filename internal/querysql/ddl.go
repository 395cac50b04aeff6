package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// ColumnType is the portable type of a catalog column.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeText      ColumnType = "text"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
)

// ParseColumnType validates a type name from a catalog.
func ParseColumnType(s string) (ColumnType, error) {
	switch t := ColumnType(s); t {
	case TypeInteger, TypeText, TypeBoolean, TypeTimestamp:
		return t, nil
	default:
		return "", fmt.Errorf("unknown column type %q (valid: integer, text, boolean, timestamp)", s)
	}
}

// ColumnDef is one column of a TableDef.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// TableDef is the physical shape of a base table, used to seed fixtures.
type TableDef struct {
	Name       string
	Columns    []ColumnDef
	PrimaryKey string
}

// sqlType maps a portable type to the dialect's column type. SQLite keeps
// timestamps as ISO-8601 text, which sorts chronologically.
func (d Dialect) sqlType(t ColumnType) (string, error) {
	switch t {
	case TypeInteger:
		if d == SQLite {
			return "INTEGER", nil
		}
		return "BIGINT", nil
	case TypeText:
		if d == MySQL {
			return "VARCHAR(255)", nil
		}
		return "TEXT", nil
	case TypeBoolean:
		if d == SQLite {
			return "INTEGER", nil
		}
		return "BOOLEAN", nil
	case TypeTimestamp:
		switch d {
		case Postgres:
			return "TIMESTAMPTZ", nil
		case MySQL:
			return "DATETIME(6)", nil
		default:
			return "TEXT", nil
		}
	default:
		return "", fmt.Errorf("unknown column type %q", t)
	}
}

// RenderCreateTable renders CREATE TABLE for t. The primary key column is
// NOT NULL; every other column is nullable.
func RenderCreateTable(t TableDef, d Dialect) (QueryText, error) {
	if !d.Valid() {
		return QueryText{}, fmt.Errorf("render create table: unknown dialect %q", d)
	}
	if len(t.Columns) == 0 {
		return QueryText{}, fmt.Errorf("render create table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns)+1)
	hasPK := false
	for _, c := range t.Columns {
		typ, err := d.sqlType(c.Type)
		if err != nil {
			return QueryText{}, fmt.Errorf("render create table %s: column %s: %w", t.Name, c.Name, err)
		}
		def := d.QuoteIdent(c.Name) + " " + typ
		if c.Name == t.PrimaryKey {
			def += " NOT NULL"
			hasPK = true
		}
		defs = append(defs, def)
	}
	if !hasPK {
		return QueryText{}, fmt.Errorf("render create table %s: primary key %q is not a column", t.Name, t.PrimaryKey)
	}
	defs = append(defs, "PRIMARY KEY ("+d.QuoteIdent(t.PrimaryKey)+")")

	sql := "CREATE TABLE " + d.QuoteIdent(t.Name) + " (" + strings.Join(defs, ", ") + ")"
	return QueryText{Dialect: d, SQL: sql}, nil
}

// RenderInsert renders a single-row INSERT of row into table.
func RenderInsert(table string, row ir.Row, d Dialect) (QueryText, error) {
	if !d.Valid() {
		return QueryText{}, fmt.Errorf("render insert: unknown dialect %q", d)
	}
	if len(row.Columns) == 0 || len(row.Columns) != len(row.Values) {
		return QueryText{}, fmt.Errorf("render insert into %s: %d columns for %d values",
			table, len(row.Columns), len(row.Values))
	}

	r := &renderer{dialect: d}
	cols := make([]string, len(row.Columns))
	phs := make([]string, len(row.Values))
	for i, c := range row.Columns {
		cols[i] = d.QuoteIdent(c)
		ph, err := r.bind(row.Values[i])
		if err != nil {
			return QueryText{}, fmt.Errorf("render insert into %s: column %s: %w", table, c, err)
		}
		phs[i] = ph
	}

	sql := "INSERT INTO " + d.QuoteIdent(table) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(phs, ", ") + ")"
	return QueryText{Dialect: d, SQL: sql, Params: r.params}, nil
}
