package queryir

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// validIdentifier matches identifiers accepted for relations and columns.
// Names are quoted when rendered, but restricting them keeps every
// dialect's quoting trivially safe.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedPrefix marks aliases the renderer generates for itself.
const reservedPrefix = "__"

// DefaultPrimaryKey is the identifier column assumed by Table.
const DefaultPrimaryKey = "id"

// ColumnRef names a column, optionally qualified by a relation alias.
// Unqualified references are resolved against the query's scope and
// stored qualified.
type ColumnRef struct {
	Relation string
	Column   string
}

// Col builds a qualified column reference.
func Col(relation, column string) ColumnRef {
	return ColumnRef{Relation: relation, Column: column}
}

// String returns "relation.column", or "column" when unqualified.
func (c ColumnRef) String() string {
	if c.Relation == "" {
		return c.Column
	}
	return c.Relation + "." + c.Column
}

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// String returns the SQL keyword for the direction.
func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// OrderTerm is one (column, direction) pair of an Ordering.
type OrderTerm struct {
	Column    ColumnRef
	Direction Direction
}

// Asc orders by c ascending.
func Asc(c ColumnRef) OrderTerm {
	return OrderTerm{Column: c, Direction: Ascending}
}

// Desc orders by c descending.
func Desc(c ColumnRef) OrderTerm {
	return OrderTerm{Column: c, Direction: Descending}
}

// String returns "relation.column DIR".
func (o OrderTerm) String() string {
	return o.Column.String() + " " + o.Direction.String()
}

// Cardinality is a hint describing how many rows of the joined relation
// match one row of the relation it is joined to.
type Cardinality int

const (
	CardinalityUnknown Cardinality = iota
	OneToOne
	OneToMany
	ManyToOne
)

// String returns the snake_case name used in scenario files.
func (c Cardinality) String() string {
	switch c {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	case ManyToOne:
		return "many_to_one"
	default:
		return "unknown"
	}
}

// ParseCardinality parses the snake_case form. The empty string is
// CardinalityUnknown.
func ParseCardinality(s string) (Cardinality, error) {
	switch s {
	case "", "unknown":
		return CardinalityUnknown, nil
	case "one_to_one":
		return OneToOne, nil
	case "one_to_many":
		return OneToMany, nil
	case "many_to_one":
		return ManyToOne, nil
	default:
		return CardinalityUnknown, fmt.Errorf("unknown cardinality %q", s)
	}
}

// Relation is a named source of rows: a base table or a derived query.
type Relation struct {
	alias      string
	table      string
	columns    []string
	primaryKey string
	source     *Query
}

// Table returns a base-table relation aliased by its own name, with
// DefaultPrimaryKey as identifier column.
func Table(name string, columns ...string) Relation {
	return Relation{
		alias:      name,
		table:      name,
		columns:    slices.Clone(columns),
		primaryKey: DefaultPrimaryKey,
	}
}

// WithPrimaryKey returns a copy using column as identifier column.
func (r Relation) WithPrimaryKey(column string) Relation {
	r.columns = slices.Clone(r.columns)
	r.primaryKey = column
	return r
}

// As returns a copy with a different alias (self-joins, short names).
func (r Relation) As(alias string) Relation {
	r.columns = slices.Clone(r.columns)
	r.alias = alias
	return r
}

// Alias is the name the relation is referenced by inside a query.
func (r Relation) Alias() string { return r.alias }

// TableName is the base table name, empty for derived relations.
func (r Relation) TableName() string { return r.table }

// Columns returns a copy of the column set, in declaration order.
func (r Relation) Columns() []string { return slices.Clone(r.columns) }

// PrimaryKey is the identifier column used by FilterByIDs and as the
// final ordering tiebreak.
func (r Relation) PrimaryKey() string { return r.primaryKey }

// IsDerived reports whether the relation wraps a query.
func (r Relation) IsDerived() bool { return r.source != nil }

// Source returns the wrapped query of a derived relation.
func (r Relation) Source() (Query, bool) {
	if r.source == nil {
		return Query{}, false
	}
	return *r.source, true
}

// HasColumn reports whether column belongs to the relation.
func (r Relation) HasColumn(column string) bool {
	return slices.Contains(r.columns, column)
}

// String describes the relation for error messages.
func (r Relation) String() string {
	if r.IsDerived() {
		return fmt.Sprintf("(subquery) AS %s", r.alias)
	}
	if r.alias != r.table {
		return fmt.Sprintf("%s AS %s", r.table, r.alias)
	}
	return r.table
}

// validate checks that the relation can be referenced safely.
func (r Relation) validate() error {
	if !validIdentifier.MatchString(r.alias) {
		return newError(ErrCodeInvalidRelation, r.String(), "invalid relation alias %q", r.alias)
	}
	if strings.HasPrefix(r.alias, reservedPrefix) {
		return newError(ErrCodeInvalidRelation, r.String(), "alias %q uses the reserved prefix %q", r.alias, reservedPrefix)
	}
	if !r.IsDerived() && !validIdentifier.MatchString(r.table) {
		return newError(ErrCodeInvalidRelation, r.String(), "invalid table name %q", r.table)
	}
	if len(r.columns) == 0 {
		return newError(ErrCodeInvalidRelation, r.String(), "relation %q has no columns", r.alias)
	}
	seen := make(map[string]bool, len(r.columns))
	for _, c := range r.columns {
		if !validIdentifier.MatchString(c) || strings.HasPrefix(c, reservedPrefix) {
			return newError(ErrCodeInvalidRelation, r.String(), "invalid column name %q", c)
		}
		if seen[c] {
			return newError(ErrCodeInvalidRelation, r.String(), "duplicate column %q", c)
		}
		seen[c] = true
	}
	if !r.HasColumn(r.primaryKey) {
		return newError(ErrCodeInvalidRelation, r.String(), "primary key %q is not a column of %q", r.primaryKey, r.alias)
	}
	return nil
}

// JoinCondition is an equi-join between a column already in scope and a
// column of the relation being joined.
type JoinCondition struct {
	Left        ColumnRef
	Right       ColumnRef
	Cardinality Cardinality
}

// On builds an equi-join condition "left = right".
func On(left, right ColumnRef) JoinCondition {
	return JoinCondition{Left: left, Right: right}
}

// WithCardinality returns a copy carrying a cardinality hint.
func (c JoinCondition) WithCardinality(card Cardinality) JoinCondition {
	c.Cardinality = card
	return c
}

// String returns "left = right".
func (c JoinCondition) String() string {
	return c.Left.String() + " = " + c.Right.String()
}

// Join is one inner join of a Query.
type Join struct {
	Relation Relation
	On       JoinCondition
}

// Projection is the column-selection clause of a Query.
//
// Both forms emit the base relation's columns. A deduplicating projection
// keeps one row per distinct Key: the first row under Order, whose leading
// columns are the key columns.
type Projection struct {
	dedupe bool
	key    []ColumnRef
	order  []OrderTerm
}

// AllColumns selects every column of the base relation without
// deduplication.
func AllColumns() Projection {
	return Projection{}
}

// DistinctOn deduplicates by key, retaining the first row under order.
// The leading order columns must equal key, position by position.
func DistinctOn(key []ColumnRef, order ...OrderTerm) Projection {
	return Projection{
		dedupe: true,
		key:    slices.Clone(key),
		order:  slices.Clone(order),
	}
}

// Deduplicates reports whether the projection collapses rows by key.
func (p Projection) Deduplicates() bool { return p.dedupe }

// Key returns a copy of the dedupe key columns.
func (p Projection) Key() []ColumnRef { return slices.Clone(p.key) }

// Order returns a copy of the ordering that picks the retained row.
func (p Projection) Order() []OrderTerm { return slices.Clone(p.order) }

// String describes the projection for error messages.
func (p Projection) String() string {
	if !p.dedupe {
		return "all columns"
	}
	keys := make([]string, len(p.key))
	for i, k := range p.key {
		keys[i] = k.String()
	}
	terms := make([]string, len(p.order))
	for i, o := range p.order {
		terms[i] = o.String()
	}
	return fmt.Sprintf("DISTINCT ON (%s) ORDER BY %s", strings.Join(keys, ", "), strings.Join(terms, ", "))
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Equals is "column = value". An IRNull value renders as IS NULL.
type Equals struct {
	Column ColumnRef
	Value  ir.IRValue
}

func (Equals) predicateNode() {}

// In is "column IN (values...)". An empty value list matches no rows.
type In struct {
	Column ColumnRef
	Values []ir.IRValue
}

func (In) predicateNode() {}

// And is the conjunction of its predicates. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Page is a LIMIT/OFFSET pair.
type Page struct {
	Limit  int
	Offset int
}
