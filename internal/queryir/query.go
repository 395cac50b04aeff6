package queryir

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relq/internal/ir"
)

// State is the composition state of a Query.
type State int

const (
	// StateRaw is a query over a base relation with no projection.
	StateRaw State = iota
	// StateProjected is a query with an explicit projection, deduplicating
	// or not.
	StateProjected
	// StateWrapped is an unprojected query whose base relation is a
	// materialized subquery.
	StateWrapped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateProjected:
		return "projected"
	case StateWrapped:
		return "wrapped"
	default:
		return "raw"
	}
}

// Query is an immutable relational query.
//
// The zero value is not usable; start from From.
type Query struct {
	from       Relation
	joins      []Join
	filters    []Predicate
	ids        []ir.IRValue
	hasIDs     bool
	projected  bool
	projection Projection
	ordering   []OrderTerm
	page       *Page
	counting   bool
}

// From starts a query over rel.
func From(rel Relation) (Query, error) {
	if err := rel.validate(); err != nil {
		return Query{}, err
	}
	return Query{from: rel}, nil
}

// clone returns a copy that shares no mutable state with q.
func (q Query) clone() Query {
	next := q
	next.joins = slices.Clone(q.joins)
	next.filters = slices.Clone(q.filters)
	next.ids = slices.Clone(q.ids)
	next.ordering = slices.Clone(q.ordering)
	if q.page != nil {
		p := *q.page
		next.page = &p
	}
	return next
}

// Join appends an inner join. One side of the condition must be qualified
// with rel's alias; the other must resolve to a column already in scope.
// The stored condition is normalized so that Left is the in-scope side.
func (q Query) Join(rel Relation, on JoinCondition) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("Join")
	}
	if err := rel.validate(); err != nil {
		return Query{}, err
	}

	clause := "JOIN " + rel.String() + " ON " + on.String()
	scope := q.scope()
	for _, r := range scope {
		if r.alias == rel.alias {
			return Query{}, newError(ErrCodeInvalidJoin, clause, "relation %q is already joined", rel.alias)
		}
	}

	left, right := on.Left, on.Right
	newLeft := left.Relation == rel.alias
	newRight := right.Relation == rel.alias
	switch {
	case newLeft && newRight:
		return Query{}, newError(ErrCodeInvalidJoin, clause,
			"condition must connect %q to a relation already in the query", rel.alias)
	case !newLeft && !newRight:
		return Query{}, newError(ErrCodeInvalidJoin, clause,
			"condition does not reference a column of %q", rel.alias)
	case newLeft:
		left, right = right, left
	}

	if !rel.HasColumn(right.Column) {
		return Query{}, newError(ErrCodeInvalidJoin, clause, "unknown column %s", right)
	}
	resolved, err := resolve(scope, left)
	if err != nil {
		return Query{}, newError(ErrCodeInvalidJoin, clause, "%v", err)
	}

	next := q.clone()
	next.joins = append(next.joins, Join{
		Relation: rel,
		On:       JoinCondition{Left: resolved, Right: right, Cardinality: on.Cardinality},
	})
	return next, nil
}

// Project sets the projection.
//
// A deduplicating projection also becomes the query's ordering. It fails
// with INVALID_PROJECTION when the key is empty, references unknown
// columns, or is not a positional prefix of the ordering.
func (q Query) Project(p Projection) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("Project")
	}
	if q.projection.dedupe {
		return Query{}, newError(ErrCodeInvalidProjection, q.projection.String(),
			"query is already deduplicated; wrap it with AsSubquery before projecting again")
	}

	next := q.clone()
	next.projected = true
	if !p.dedupe {
		next.projection = Projection{}
		return next, nil
	}

	if q.page != nil {
		return Query{}, newError(ErrCodeInvalidProjection, p.String(),
			"cannot deduplicate a paginated query; wrap it with AsSubquery first")
	}
	normalized, err := normalizeDedupe(q.scope(), p)
	if err != nil {
		return Query{}, err
	}
	next.projection = normalized
	next.ordering = slices.Clone(normalized.order)

	// Identifiers chosen before deduplication narrow its input rows, like
	// any other filter. Only later FilterByIDs calls restrict its output.
	if q.hasIDs {
		next.filters = append(next.filters, In{
			Column: Col(q.from.alias, q.from.primaryKey),
			Values: slices.Clone(q.ids),
		})
		next.ids = nil
		next.hasIDs = false
	}
	return next, nil
}

// normalizeDedupe resolves key and order columns and checks the prefix rule.
func normalizeDedupe(scope []Relation, p Projection) (Projection, error) {
	clause := p.String()
	if len(p.key) == 0 {
		return Projection{}, newError(ErrCodeInvalidProjection, clause, "dedupe key must name at least one column")
	}

	key := make([]ColumnRef, len(p.key))
	for i, k := range p.key {
		resolved, err := resolve(scope, k)
		if err != nil {
			return Projection{}, newError(ErrCodeInvalidProjection, clause, "dedupe key: %v", err)
		}
		if slices.Contains(key[:i], resolved) {
			return Projection{}, newError(ErrCodeInvalidProjection, clause, "dedupe key repeats %s", resolved)
		}
		key[i] = resolved
	}

	order := make([]OrderTerm, len(p.order))
	for i, o := range p.order {
		resolved, err := resolve(scope, o.Column)
		if err != nil {
			return Projection{}, newError(ErrCodeInvalidProjection, clause, "ordering: %v", err)
		}
		order[i] = OrderTerm{Column: resolved, Direction: o.Direction}
	}

	if len(order) < len(key) {
		return Projection{}, newError(ErrCodeInvalidProjection, clause,
			"dedupe key (%s) is not a prefix of the ordering (%s)", joinRefs(key), joinTerms(order))
	}
	for i := range key {
		if order[i].Column != key[i] {
			return Projection{}, newError(ErrCodeInvalidProjection, clause,
				"dedupe key (%s) is not a prefix of the ordering (%s)", joinRefs(key), joinTerms(order))
		}
	}

	return Projection{dedupe: true, key: key, order: order}, nil
}

// Filter adds a column predicate. Rejected on deduplicating queries.
func (q Query) Filter(p Predicate) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("Filter")
	}
	if q.projection.dedupe {
		return Query{}, unsupportedOnDedupe("Filter", q.projection)
	}
	normalized, err := normalizePredicate(q.scope(), p)
	if err != nil {
		return Query{}, err
	}
	next := q.clone()
	next.filters = append(next.filters, normalized)
	return next, nil
}

// FilterByIDs restricts rows to identifiers in ids, intersected with any
// earlier identifier restriction and with the existing filters.
//
// Valid on every query. On a deduplicating query the restriction applies
// to the deduplicated rows; identifiers set before the projection filter
// its input instead.
func (q Query) FilterByIDs(ids ...ir.IRValue) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("FilterByIDs")
	}
	clause := fmt.Sprintf("%s.%s IN (...)", q.from.alias, q.from.primaryKey)
	for i, id := range ids {
		if !ir.IsScalar(id) {
			return Query{}, newError(ErrCodeInvalidFilter, clause, "identifier %d is not a scalar value", i)
		}
		if _, isNull := id.(ir.IRNull); isNull {
			return Query{}, newError(ErrCodeInvalidFilter, clause, "identifier %d is NULL", i)
		}
	}

	set := sortedUnique(ids)
	if q.hasIDs {
		set = slices.DeleteFunc(set, func(v ir.IRValue) bool {
			return !slices.ContainsFunc(q.ids, func(w ir.IRValue) bool { return ir.Equal(v, w) })
		})
	}

	next := q.clone()
	next.ids = set
	next.hasIDs = true
	return next, nil
}

// OrderBy replaces the ordering. On a deduplicating query the dedupe key
// must remain the ordering's prefix.
func (q Query) OrderBy(terms ...OrderTerm) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("OrderBy")
	}
	next := q.clone()
	if q.projection.dedupe {
		normalized, err := normalizeDedupe(q.scope(), DistinctOn(q.projection.key, terms...))
		if err != nil {
			return Query{}, err
		}
		next.projection = normalized
		next.ordering = slices.Clone(normalized.order)
		return next, nil
	}

	ordering := make([]OrderTerm, len(terms))
	for i, o := range terms {
		resolved, err := resolve(q.scope(), o.Column)
		if err != nil {
			return Query{}, newError(ErrCodeInvalidOrdering, joinTerms(terms), "%v", err)
		}
		ordering[i] = OrderTerm{Column: resolved, Direction: o.Direction}
	}
	next.ordering = ordering
	return next, nil
}

// Paginate limits the rows returned. Rejected on deduplicating queries.
func (q Query) Paginate(limit, offset int) (Query, error) {
	if q.counting {
		return Query{}, countQueryFinal("Paginate")
	}
	if q.projection.dedupe {
		return Query{}, unsupportedOnDedupe("Paginate", q.projection)
	}
	clause := fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	if limit <= 0 {
		return Query{}, newError(ErrCodeInvalidFilter, clause, "limit must be positive")
	}
	if offset < 0 {
		return Query{}, newError(ErrCodeInvalidFilter, clause, "offset must not be negative")
	}
	next := q.clone()
	next.page = &Page{Limit: limit, Offset: offset}
	return next, nil
}

// ToCountQuery derives the row-counting form of q.
//
// A naive count over a deduplicating projection does not count distinct
// groups, so it fails with UNSUPPORTED_ON_DEDUPLICATED; wrap the query
// with AsSubquery and count the outer query instead.
func (q Query) ToCountQuery() (Query, error) {
	if q.projection.dedupe {
		return Query{}, unsupportedOnDedupe("ToCountQuery", q.projection)
	}
	if q.counting {
		return q, nil
	}
	next := q.clone()
	next.counting = true
	return next, nil
}

// AsSubquery wraps q as a derived relation whose columns are q's output
// columns. Build the outer query with From.
func (q Query) AsSubquery(alias string) (Relation, error) {
	if q.counting {
		return Relation{}, countQueryFinal("AsSubquery")
	}
	inner := q.clone()
	rel := Relation{
		alias:      alias,
		columns:    q.OutputColumns(),
		primaryKey: q.from.primaryKey,
		source:     &inner,
	}
	if err := rel.validate(); err != nil {
		return Relation{}, err
	}
	return rel, nil
}

// Base returns the relation the query selects from.
func (q Query) Base() Relation { return q.from }

// Joins returns a copy of the joins in order.
func (q Query) Joins() []Join { return slices.Clone(q.joins) }

// Filters returns a copy of the column predicates in order.
func (q Query) Filters() []Predicate { return slices.Clone(q.filters) }

// IDFilter returns the identifier restriction, if any. An empty, present
// set matches no rows.
func (q Query) IDFilter() ([]ir.IRValue, bool) {
	return slices.Clone(q.ids), q.hasIDs
}

// Projection returns the projection and whether one was set explicitly.
func (q Query) Projection() (Projection, bool) { return q.projection, q.projected }

// Ordering returns a copy of the ordering.
func (q Query) Ordering() []OrderTerm { return slices.Clone(q.ordering) }

// Page returns the pagination, if any.
func (q Query) Page() (Page, bool) {
	if q.page == nil {
		return Page{}, false
	}
	return *q.page, true
}

// Counting reports whether q is a row-counting query.
func (q Query) Counting() bool { return q.counting }

// Deduplicates reports whether q's projection collapses rows by key.
func (q Query) Deduplicates() bool { return q.projection.dedupe }

// OutputColumns returns the columns visible to a query wrapping q.
func (q Query) OutputColumns() []string { return q.from.Columns() }

// State reports the composition state.
func (q Query) State() State {
	switch {
	case q.projected:
		return StateProjected
	case q.from.IsDerived():
		return StateWrapped
	default:
		return StateRaw
	}
}

// scope lists the relations whose columns may be referenced.
func (q Query) scope() []Relation {
	scope := make([]Relation, 0, 1+len(q.joins))
	scope = append(scope, q.from)
	for _, j := range q.joins {
		scope = append(scope, j.Relation)
	}
	return scope
}

// resolve qualifies c against scope. Unqualified references must match
// exactly one relation.
func resolve(scope []Relation, c ColumnRef) (ColumnRef, error) {
	if c.Column == "" {
		return ColumnRef{}, fmt.Errorf("empty column reference")
	}
	if c.Relation != "" {
		for _, r := range scope {
			if r.alias == c.Relation {
				if !r.HasColumn(c.Column) {
					return ColumnRef{}, fmt.Errorf("unknown column %s", c)
				}
				return c, nil
			}
		}
		return ColumnRef{}, fmt.Errorf("unknown relation %q in %s", c.Relation, c)
	}

	var found []string
	for _, r := range scope {
		if r.HasColumn(c.Column) {
			found = append(found, r.alias)
		}
	}
	switch len(found) {
	case 0:
		return ColumnRef{}, fmt.Errorf("unknown column %s", c)
	case 1:
		return Col(found[0], c.Column), nil
	default:
		return ColumnRef{}, fmt.Errorf("ambiguous column %s (in %s)", c.Column, strings.Join(found, ", "))
	}
}

// normalizePredicate resolves every column and copies every slice.
func normalizePredicate(scope []Relation, p Predicate) (Predicate, error) {
	switch pred := p.(type) {
	case Equals:
		return normalizeEquals(scope, pred)
	case *Equals:
		if pred == nil {
			return nil, newError(ErrCodeInvalidFilter, "", "nil predicate")
		}
		return normalizeEquals(scope, *pred)
	case In:
		return normalizeIn(scope, pred)
	case *In:
		if pred == nil {
			return nil, newError(ErrCodeInvalidFilter, "", "nil predicate")
		}
		return normalizeIn(scope, *pred)
	case And:
		return normalizeAnd(scope, pred)
	case *And:
		if pred == nil {
			return nil, newError(ErrCodeInvalidFilter, "", "nil predicate")
		}
		return normalizeAnd(scope, *pred)
	case nil:
		return nil, newError(ErrCodeInvalidFilter, "", "nil predicate")
	default:
		return nil, newError(ErrCodeInvalidFilter, "", "unsupported predicate type: %T", p)
	}
}

func normalizeEquals(scope []Relation, eq Equals) (Predicate, error) {
	clause := eq.Column.String() + " = " + ir.Format(eq.Value)
	col, err := resolve(scope, eq.Column)
	if err != nil {
		return nil, newError(ErrCodeInvalidFilter, clause, "%v", err)
	}
	if eq.Value == nil || !ir.IsScalar(eq.Value) {
		return nil, newError(ErrCodeInvalidFilter, clause, "value must be a scalar")
	}
	return Equals{Column: col, Value: eq.Value}, nil
}

func normalizeIn(scope []Relation, in In) (Predicate, error) {
	clause := in.Column.String() + " IN (...)"
	col, err := resolve(scope, in.Column)
	if err != nil {
		return nil, newError(ErrCodeInvalidFilter, clause, "%v", err)
	}
	for i, v := range in.Values {
		if v == nil || !ir.IsScalar(v) {
			return nil, newError(ErrCodeInvalidFilter, clause, "value %d must be a scalar", i)
		}
		if _, isNull := v.(ir.IRNull); isNull {
			return nil, newError(ErrCodeInvalidFilter, clause, "value %d is NULL; use Equals with NULL", i)
		}
	}
	return In{Column: col, Values: slices.Clone(in.Values)}, nil
}

func normalizeAnd(scope []Relation, and And) (Predicate, error) {
	preds := make([]Predicate, len(and.Predicates))
	for i, sub := range and.Predicates {
		normalized, err := normalizePredicate(scope, sub)
		if err != nil {
			return nil, err
		}
		preds[i] = normalized
	}
	return And{Predicates: preds}, nil
}

// sortedUnique returns ids deduplicated and in a canonical order, so that
// logically equal identifier sets render identically.
func sortedUnique(ids []ir.IRValue) []ir.IRValue {
	out := make([]ir.IRValue, 0, len(ids))
	for _, id := range ids {
		if !slices.ContainsFunc(out, func(v ir.IRValue) bool { return ir.Equal(v, id) }) {
			out = append(out, id)
		}
	}
	slices.SortFunc(out, compareScalars)
	return out
}

// compareScalars orders booleans before integers before strings.
func compareScalars(a, b ir.IRValue) int {
	if r := cmp.Compare(scalarRank(a), scalarRank(b)); r != 0 {
		return r
	}
	switch av := a.(type) {
	case ir.IRBool:
		bv := b.(ir.IRBool)
		switch {
		case av == bv:
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case ir.IRInt:
		return cmp.Compare(av, b.(ir.IRInt))
	case ir.IRString:
		return cmp.Compare(av, b.(ir.IRString))
	}
	return 0
}

func scalarRank(v ir.IRValue) int {
	switch v.(type) {
	case ir.IRBool:
		return 0
	case ir.IRInt:
		return 1
	default:
		return 2
	}
}

func joinRefs(refs []ColumnRef) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}

func joinTerms(terms []OrderTerm) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
