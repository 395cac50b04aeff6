package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/roach88/relq/internal/catalog"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/qdsl"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/store"
)

// builder composes named queries on demand. Results, including
// composition errors, are memoized so a query referenced by several steps
// and subqueries is composed once.
type builder struct {
	cat      *catalog.Catalog
	specs    map[string]QuerySpec
	built    map[string]builtQuery
	visiting map[string]bool
}

type builtQuery struct {
	q   queryir.Query
	err error
}

func newBuilder(cat *catalog.Catalog, specs map[string]QuerySpec) *builder {
	return &builder{
		cat:      cat,
		specs:    specs,
		built:    make(map[string]builtQuery),
		visiting: make(map[string]bool),
	}
}

func (b *builder) build(name string) (queryir.Query, error) {
	if r, ok := b.built[name]; ok {
		return r.q, r.err
	}
	if b.visiting[name] {
		return queryir.Query{}, fmt.Errorf("query %s: subquery cycle", name)
	}
	spec, ok := b.specs[name]
	if !ok {
		return queryir.Query{}, fmt.Errorf("unknown query %q", name)
	}

	b.visiting[name] = true
	q, err := b.compose(spec)
	delete(b.visiting, name)
	if err != nil {
		err = fmt.Errorf("query %s: %w", name, err)
	}
	b.built[name] = builtQuery{q: q, err: err}
	return q, err
}

func (b *builder) compose(spec QuerySpec) (queryir.Query, error) {
	base, err := b.baseRelation(spec)
	if err != nil {
		return queryir.Query{}, err
	}
	q, err := queryir.From(base)
	if err != nil {
		return queryir.Query{}, err
	}

	scope := []queryir.Relation{base}
	for i, js := range spec.Joins {
		rel, err := b.cat.Relation(js.Table)
		if err != nil {
			return queryir.Query{}, fmt.Errorf("joins[%d]: %w", i, err)
		}
		if js.As != "" {
			rel = rel.As(js.As)
		}
		on, err := b.joinCondition(scope, rel, js)
		if err != nil {
			return queryir.Query{}, fmt.Errorf("joins[%d]: %w", i, err)
		}
		if q, err = q.Join(rel, on); err != nil {
			return queryir.Query{}, err
		}
		scope = append(scope, rel)
	}

	for _, column := range sortedNames(spec.Where) {
		p, err := wherePredicate(column, spec.Where[column])
		if err != nil {
			return queryir.Query{}, fmt.Errorf("where %s: %w", column, err)
		}
		if q, err = q.Filter(p); err != nil {
			return queryir.Query{}, err
		}
	}

	if spec.InputIDs != nil {
		if q, err = filterIDs(q, *spec.InputIDs); err != nil {
			return queryir.Query{}, fmt.Errorf("input_ids: %w", err)
		}
	}

	var order []queryir.OrderTerm
	if spec.Order != "" {
		if order, err = qdsl.ParseOrdering(spec.Order); err != nil {
			return queryir.Query{}, fmt.Errorf("order: %w", err)
		}
	}
	if spec.DistinctOn != "" {
		key, err := qdsl.ParseColumns(spec.DistinctOn)
		if err != nil {
			return queryir.Query{}, fmt.Errorf("distinct_on: %w", err)
		}
		if q, err = q.Project(queryir.DistinctOn(key, order...)); err != nil {
			return queryir.Query{}, err
		}
	} else if len(order) > 0 {
		if q, err = q.OrderBy(order...); err != nil {
			return queryir.Query{}, err
		}
	}

	if spec.IDs != nil {
		if q, err = filterIDs(q, *spec.IDs); err != nil {
			return queryir.Query{}, fmt.Errorf("ids: %w", err)
		}
	}

	if spec.Paginate != nil {
		if q, err = q.Paginate(spec.Paginate.Limit, spec.Paginate.Offset); err != nil {
			return queryir.Query{}, err
		}
	}
	return q, nil
}

func filterIDs(q queryir.Query, raw []any) (queryir.Query, error) {
	ids, err := irValues(raw)
	if err != nil {
		return queryir.Query{}, err
	}
	return q.FilterByIDs(ids...)
}

func (b *builder) baseRelation(spec QuerySpec) (queryir.Relation, error) {
	if spec.SubqueryOf != "" {
		inner, err := b.build(spec.SubqueryOf)
		if err != nil {
			return queryir.Relation{}, err
		}
		return inner.AsSubquery(spec.Alias)
	}
	rel, err := b.cat.Relation(spec.From)
	if err != nil {
		return queryir.Relation{}, err
	}
	if spec.Alias != "" {
		rel = rel.As(spec.Alias)
	}
	return rel, nil
}

// joinCondition parses an explicit condition, or infers one from the single
// catalog table in scope that the joined table is linked to.
func (b *builder) joinCondition(scope []queryir.Relation, rel queryir.Relation, js JoinSpec) (queryir.JoinCondition, error) {
	if js.On != "" {
		cond, err := qdsl.ParseCondition(js.On)
		if err != nil {
			return queryir.JoinCondition{}, err
		}
		if js.Cardinality != "" {
			card, err := queryir.ParseCardinality(js.Cardinality)
			if err != nil {
				return queryir.JoinCondition{}, err
			}
			cond = cond.WithCardinality(card)
		}
		return cond, nil
	}

	var (
		found   []queryir.JoinCondition
		linked  []string
		lastErr error
	)
	for _, s := range scope {
		if s.IsDerived() {
			continue
		}
		cond, err := b.cat.InferJoin(s, rel)
		if err != nil {
			lastErr = err
			continue
		}
		found = append(found, cond)
		linked = append(linked, s.Alias())
	}

	switch len(found) {
	case 0:
		if lastErr == nil {
			lastErr = fmt.Errorf("no catalog table in scope to infer a join to %s", rel)
		}
		return queryir.JoinCondition{}, lastErr
	case 1:
		return found[0], nil
	default:
		return queryir.JoinCondition{}, fmt.Errorf("join to %s is ambiguous between %s; spell out the condition",
			rel, strings.Join(linked, ", "))
	}
}

func wherePredicate(column string, value any) (queryir.Predicate, error) {
	col, err := qdsl.ParseColumn(column)
	if err != nil {
		return nil, err
	}
	if list, ok := value.([]any); ok {
		values, err := irValues(list)
		if err != nil {
			return nil, err
		}
		return queryir.In{Column: col, Values: values}, nil
	}
	v, err := ir.FromAny(value)
	if err != nil {
		return nil, err
	}
	return queryir.Equals{Column: col, Value: v}, nil
}

func irValues(values []any) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(values))
	for i, v := range values {
		iv, err := ir.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = iv
	}
	return out, nil
}

// fixtureRows converts scenario fixture maps to rows. Tables and columns
// are taken in name order.
func fixtureRows(fixtures map[string][]map[string]any) ([]store.Fixture, error) {
	out := make([]store.Fixture, 0, len(fixtures))
	for _, table := range sortedNames(fixtures) {
		f := store.Fixture{Table: table}
		for i, m := range fixtures[table] {
			cols := sortedNames(m)
			row := ir.Row{Columns: slices.Clone(cols), Values: make([]ir.IRValue, len(cols))}
			for j, c := range cols {
				v, err := ir.FromAny(m[c])
				if err != nil {
					return nil, fmt.Errorf("fixtures.%s[%d].%s: %w", table, i, c, err)
				}
				row.Values[j] = v
			}
			f.Rows = append(f.Rows, row)
		}
		out = append(out, f)
	}
	return out, nil
}

// ComposedQuery is a named scenario query after composition.
type ComposedQuery struct {
	Name  string
	Query queryir.Query

	// Err is the composition or build error, if any.
	Err error
}

// Compose loads the scenario catalog and composes every named query, in
// name order. Failures are reported per query.
func Compose(fs afero.Fs, scenario *Scenario) ([]ComposedQuery, error) {
	cat, err := loadCatalog(fs, scenario)
	if err != nil {
		return nil, err
	}

	b := newBuilder(cat, scenario.Queries)
	out := make([]ComposedQuery, 0, len(scenario.Queries))
	for _, name := range sortedNames(scenario.Queries) {
		q, err := b.build(name)
		out = append(out, ComposedQuery{Name: name, Query: q, Err: err})
	}
	return out, nil
}

func loadCatalog(fs afero.Fs, scenario *Scenario) (*catalog.Catalog, error) {
	src, err := afero.ReadFile(fs, scenario.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	cat, err := catalog.Parse(scenario.Catalog, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}
