package querysql

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
)

// Aliases the renderer generates. User aliases may not start with "__".
const (
	dedupeAlias = "__dedup"
	countAlias  = "__count"
	rowNumber   = "__rn"
	orderPrefix = "__ord"
)

// renderer accumulates parameters while a statement is emitted. Text is
// produced strictly left to right, so parameter order always matches
// placeholder order, including inside nested subqueries.
type renderer struct {
	dialect Dialect
	params  []ir.IRValue
}

// Render converts a composed query to parameterized SQL for dialect d.
//
// Every non-count statement ends with an ORDER BY carrying a primary-key
// tiebreak, so result order is deterministic. Values are never
// interpolated.
func Render(q queryir.Query, d Dialect) (QueryText, error) {
	if !d.Valid() {
		return QueryText{}, fmt.Errorf("render: unknown dialect %q", d)
	}
	r := &renderer{dialect: d}
	sql, err := r.query(q)
	if err != nil {
		return QueryText{}, fmt.Errorf("render: %w", err)
	}
	return QueryText{Dialect: d, SQL: sql, Params: r.params}, nil
}

func (r *renderer) query(q queryir.Query) (string, error) {
	if q.Counting() {
		return r.count(q)
	}
	if q.Deduplicates() {
		return r.dedupe(q)
	}
	return r.plain(q)
}

// count renders COUNT(*) directly over the sources, or over the full
// statement when pagination has to be honoured.
func (r *renderer) count(q queryir.Query) (string, error) {
	if _, paged := q.Page(); paged {
		inner, err := r.plain(q)
		if err != nil {
			return "", err
		}
		return "SELECT COUNT(*) FROM (" + inner + ") AS " + r.ident(countAlias), nil
	}

	var b strings.Builder
	b.WriteString("SELECT COUNT(*)")
	if err := r.fromClause(&b, q); err != nil {
		return "", err
	}
	if err := r.whereClause(&b, q, true); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (r *renderer) plain(q queryir.Query) (string, error) {
	base := q.Base()

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(r.columnList(base.Alias(), base.Columns()))
	if err := r.fromClause(&b, q); err != nil {
		return "", err
	}
	if err := r.whereClause(&b, q, true); err != nil {
		return "", err
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(r.orderList(orderWithTiebreak(q)))
	if page, ok := q.Page(); ok {
		b.WriteString(" LIMIT " + strconv.Itoa(page.Limit) + " OFFSET " + strconv.Itoa(page.Offset))
	}
	return b.String(), nil
}

// dedupe renders a deduplicating projection.
//
// PostgreSQL without an identifier filter gets a bare DISTINCT ON. In
// every other case the deduplicated rows are produced by an inner
// statement that also exposes the ordering as hidden columns; the outer
// statement keeps the first row per key (ROW_NUMBER dialects), applies the
// identifier filter to the surviving rows, and restores the ordering.
func (r *renderer) dedupe(q queryir.Query) (string, error) {
	base := q.Base()
	proj, _ := q.Projection()
	key := r.refList(proj.Key())
	terms := orderWithTiebreak(q)
	ids, hasIDs := q.IDFilter()

	if r.dialect.supportsDistinctOn() && !hasIDs {
		var b strings.Builder
		b.WriteString("SELECT DISTINCT ON (" + key + ") ")
		b.WriteString(r.columnList(base.Alias(), base.Columns()))
		if err := r.fromClause(&b, q); err != nil {
			return "", err
		}
		if err := r.whereClause(&b, q, false); err != nil {
			return "", err
		}
		b.WriteString(" ORDER BY " + r.orderList(terms))
		return b.String(), nil
	}

	var inner strings.Builder
	inner.WriteString("SELECT ")
	if r.dialect.supportsDistinctOn() {
		inner.WriteString("DISTINCT ON (" + key + ") ")
	}
	inner.WriteString(r.columnList(base.Alias(), base.Columns()))
	for i, t := range terms {
		inner.WriteString(", " + r.ref(t.Column) + " AS " + r.ident(orderColumn(i)))
	}
	if !r.dialect.supportsDistinctOn() {
		inner.WriteString(", ROW_NUMBER() OVER (PARTITION BY " + key + " ORDER BY " + r.orderList(terms) + ") AS " + r.ident(rowNumber))
	}
	if err := r.fromClause(&inner, q); err != nil {
		return "", err
	}
	if err := r.whereClause(&inner, q, false); err != nil {
		return "", err
	}
	if r.dialect.supportsDistinctOn() {
		inner.WriteString(" ORDER BY " + r.orderList(terms))
	}

	var conds []string
	if !r.dialect.supportsDistinctOn() {
		conds = append(conds, r.qualified(dedupeAlias, rowNumber)+" = 1")
	}
	if hasIDs {
		cond, err := r.in(r.qualified(dedupeAlias, base.PrimaryKey()), ids)
		if err != nil {
			return "", err
		}
		conds = append(conds, cond)
	}

	outerOrder := make([]string, len(terms))
	for i, t := range terms {
		outerOrder[i] = r.qualified(dedupeAlias, orderColumn(i)) + " " + t.Direction.String()
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(r.columnList(dedupeAlias, base.Columns()))
	b.WriteString(" FROM (" + inner.String() + ") AS " + r.ident(dedupeAlias))
	b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	b.WriteString(" ORDER BY " + strings.Join(outerOrder, ", "))
	return b.String(), nil
}

// fromClause writes " FROM <base> [INNER JOIN <rel> ON l = r]...".
func (r *renderer) fromClause(b *strings.Builder, q queryir.Query) error {
	src, err := r.source(q.Base())
	if err != nil {
		return err
	}
	b.WriteString(" FROM " + src)
	for _, j := range q.Joins() {
		src, err := r.source(j.Relation)
		if err != nil {
			return err
		}
		b.WriteString(" INNER JOIN " + src + " ON " + r.ref(j.On.Left) + " = " + r.ref(j.On.Right))
	}
	return nil
}

// whereClause writes the column filters and, when includeIDs is set, the
// identifier filter. Nothing is written when there are no conditions.
func (r *renderer) whereClause(b *strings.Builder, q queryir.Query, includeIDs bool) error {
	var conds []string
	for _, p := range q.Filters() {
		cond, err := r.predicate(p)
		if err != nil {
			return err
		}
		conds = append(conds, cond)
	}
	if includeIDs {
		if ids, ok := q.IDFilter(); ok {
			base := q.Base()
			cond, err := r.in(r.qualified(base.Alias(), base.PrimaryKey()), ids)
			if err != nil {
				return err
			}
			conds = append(conds, cond)
		}
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	return nil
}

// source renders a relation as it appears after FROM or JOIN.
func (r *renderer) source(rel queryir.Relation) (string, error) {
	if inner, ok := rel.Source(); ok {
		sql, err := r.query(inner)
		if err != nil {
			return "", fmt.Errorf("subquery %s: %w", rel.Alias(), err)
		}
		return "(" + sql + ") AS " + r.ident(rel.Alias()), nil
	}
	if rel.TableName() == rel.Alias() {
		return r.ident(rel.TableName()), nil
	}
	return r.ident(rel.TableName()) + " AS " + r.ident(rel.Alias()), nil
}

func (r *renderer) predicate(p queryir.Predicate) (string, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		if _, isNull := pred.Value.(ir.IRNull); isNull {
			return r.ref(pred.Column) + " IS NULL", nil
		}
		ph, err := r.bind(pred.Value)
		if err != nil {
			return "", err
		}
		return r.ref(pred.Column) + " = " + ph, nil
	case queryir.In:
		return r.in(r.ref(pred.Column), pred.Values)
	case queryir.And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil
		}
		parts := make([]string, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			part, err := r.predicate(sub)
			if err != nil {
				return "", err
			}
			parts[i] = part
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	default:
		return "", fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// in renders "col IN (...)". An empty set is the constant false "1 = 0".
func (r *renderer) in(col string, values []ir.IRValue) (string, error) {
	if len(values) == 0 {
		return "1 = 0", nil
	}
	phs := make([]string, len(values))
	for i, v := range values {
		ph, err := r.bind(v)
		if err != nil {
			return "", err
		}
		phs[i] = ph
	}
	return col + " IN (" + strings.Join(phs, ", ") + ")", nil
}

func (r *renderer) bind(v ir.IRValue) (string, error) {
	if v == nil || !ir.IsScalar(v) {
		return "", fmt.Errorf("cannot bind non-scalar value %s", ir.Format(v))
	}
	r.params = append(r.params, v)
	return r.dialect.placeholder(len(r.params)), nil
}

func (r *renderer) ident(name string) string {
	return r.dialect.QuoteIdent(name)
}

func (r *renderer) qualified(relation, column string) string {
	return r.ident(relation) + "." + r.ident(column)
}

func (r *renderer) ref(c queryir.ColumnRef) string {
	return r.qualified(c.Relation, c.Column)
}

func (r *renderer) columnList(relation string, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = r.qualified(relation, c)
	}
	return strings.Join(parts, ", ")
}

func (r *renderer) refList(refs []queryir.ColumnRef) string {
	parts := make([]string, len(refs))
	for i, c := range refs {
		parts[i] = r.ref(c)
	}
	return strings.Join(parts, ", ")
}

func (r *renderer) orderList(terms []queryir.OrderTerm) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = r.ref(t.Column) + " " + t.Direction.String()
	}
	return strings.Join(parts, ", ")
}

// orderWithTiebreak appends the base primary key, ascending, unless the
// ordering already contains it.
func orderWithTiebreak(q queryir.Query) []queryir.OrderTerm {
	terms := q.Ordering()
	base := q.Base()
	pk := queryir.Col(base.Alias(), base.PrimaryKey())
	if !slices.ContainsFunc(terms, func(t queryir.OrderTerm) bool { return t.Column == pk }) {
		terms = append(terms, queryir.Asc(pk))
	}
	return terms
}

func orderColumn(i int) string {
	return orderPrefix + strconv.Itoa(i)
}
