// Package qdsl parses the short textual forms used in scenario files and
// on the command line: column references ("activations.user_id"), column
// lists, equi-join conditions ("users.id = posts.user_id") and ordering
// lists ("activations.user_id, activations.created_at DESC").
package qdsl

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/relq/internal/queryir"
)

// Directions lex as plain identifiers, so columns may be named "asc" or
// "desc". Position decides which is which.
var lex = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[.,=]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

type columnRef struct {
	First  string `parser:"@Ident"`
	Second string `parser:"( '.' @Ident )?"`
}

func (c columnRef) ref() queryir.ColumnRef {
	if c.Second == "" {
		return queryir.ColumnRef{Column: c.First}
	}
	return queryir.Col(c.First, c.Second)
}

type columnList struct {
	Columns []columnRef `parser:"@@ ( ',' @@ )*"`
}

type condition struct {
	Left  columnRef `parser:"@@ '='"`
	Right columnRef `parser:"@@"`
}

type orderTerm struct {
	Column    columnRef `parser:"@@"`
	Direction string    `parser:"@Ident?"`
}

type orderList struct {
	Terms []orderTerm `parser:"@@ ( ',' @@ )*"`
}

var (
	columnParser    = build[columnRef]()
	columnsParser   = build[columnList]()
	conditionParser = build[condition]()
	orderingParser  = build[orderList]()
)

func build[G any]() *participle.Parser[G] {
	return participle.MustBuild[G](
		participle.Lexer(lex),
		participle.Elide("Whitespace"),
	)
}

// ParseColumn parses "relation.column" or "column".
func ParseColumn(s string) (queryir.ColumnRef, error) {
	c, err := columnParser.ParseString("", s)
	if err != nil {
		return queryir.ColumnRef{}, fmt.Errorf("parse column %q: %w", s, err)
	}
	return c.ref(), nil
}

// ParseColumns parses a comma-separated column list.
func ParseColumns(s string) ([]queryir.ColumnRef, error) {
	list, err := columnsParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("parse columns %q: %w", s, err)
	}
	refs := make([]queryir.ColumnRef, len(list.Columns))
	for i, c := range list.Columns {
		refs[i] = c.ref()
	}
	return refs, nil
}

// ParseCondition parses an equi-join condition "left = right".
func ParseCondition(s string) (queryir.JoinCondition, error) {
	c, err := conditionParser.ParseString("", s)
	if err != nil {
		return queryir.JoinCondition{}, fmt.Errorf("parse condition %q: %w", s, err)
	}
	return queryir.On(c.Left.ref(), c.Right.ref()), nil
}

// ParseOrdering parses a comma-separated ordering list. Terms without a
// direction are ascending.
func ParseOrdering(s string) ([]queryir.OrderTerm, error) {
	list, err := orderingParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("parse ordering %q: %w", s, err)
	}
	terms := make([]queryir.OrderTerm, len(list.Terms))
	for i, t := range list.Terms {
		var dir queryir.Direction
		switch {
		case t.Direction == "", strings.EqualFold(t.Direction, "ASC"):
			dir = queryir.Ascending
		case strings.EqualFold(t.Direction, "DESC"):
			dir = queryir.Descending
		default:
			return nil, fmt.Errorf("parse ordering %q: unknown direction %q", s, t.Direction)
		}
		terms[i] = queryir.OrderTerm{Column: t.Column.ref(), Direction: dir}
	}
	return terms, nil
}
