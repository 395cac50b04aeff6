package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/build"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"github.com/spf13/afero"

	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

// Table is one base-table definition.
type Table struct {
	Name       string
	PrimaryKey string
	Columns    []querysql.ColumnDef

	// References maps a column of this table to the column it points at.
	References map[string]queryir.ColumnRef

	Pos token.Pos
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Relation returns the table as a queryir relation aliased by its name.
func (t Table) Relation() queryir.Relation {
	return queryir.Table(t.Name, t.ColumnNames()...).WithPrimaryKey(t.PrimaryKey)
}

// Def returns the physical definition used to create the table.
func (t Table) Def() querysql.TableDef {
	return querysql.TableDef{
		Name:       t.Name,
		Columns:    slices.Clone(t.Columns),
		PrimaryKey: t.PrimaryKey,
	}
}

// Catalog is an immutable set of table definitions.
type Catalog struct {
	tables map[string]Table
}

// Compile reads every table under v's "table" field.
func Compile(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return nil, &DefinitionError{
			Field:   "table",
			Message: "catalog declares no tables",
			Pos:     v.Pos(),
		}
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	c := &Catalog{tables: make(map[string]Table)}
	for iter.Next() {
		t, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		c.tables[t.Name] = t
	}

	if err := c.checkReferences(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse compiles a single CUE source.
func Parse(filename string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return Compile(v)
}

// LoadDir loads the CUE package in dir and compiles it.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog directory: not a directory: %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(inst))
}

// LoadFs compiles the .cue files directly inside dir on fs as one package.
// Imports are not resolved; use LoadDir for packages on disk that need them.
func LoadFs(fs afero.Fs, dir string) (*Catalog, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("catalog directory: %w", err)
	}

	inst := build.NewContext().NewInstance(dir, nil)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".cue" || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := filepath.Join(dir, e.Name())
		src, err := afero.ReadFile(fs, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog: %w", err)
		}
		if err := inst.AddFile(name, src); err != nil {
			return nil, formatCUEError(err)
		}
	}
	if len(inst.Files) == 0 {
		return nil, fmt.Errorf("no CUE files in %s", dir)
	}

	ctx := cuecontext.New()
	return Compile(ctx.BuildInstance(inst))
}

func compileTable(name string, v cue.Value) (Table, error) {
	field := "table." + name
	t := Table{
		Name:       name,
		PrimaryKey: queryir.DefaultPrimaryKey,
		References: make(map[string]queryir.ColumnRef),
		Pos:        v.Pos(),
	}

	if pkVal := v.LookupPath(cue.ParsePath("primary_key")); pkVal.Exists() {
		pk, err := pkVal.String()
		if err != nil {
			return Table{}, formatCUEError(err)
		}
		t.PrimaryKey = pk
	}

	colsVal := v.LookupPath(cue.ParsePath("columns"))
	if !colsVal.Exists() {
		return Table{}, &DefinitionError{Field: field + ".columns", Message: "columns are required", Pos: v.Pos()}
	}
	iter, err := colsVal.Fields()
	if err != nil {
		return Table{}, formatCUEError(err)
	}
	for iter.Next() {
		typ, err := columnType(iter.Value())
		if err != nil {
			return Table{}, &DefinitionError{
				Field:   field + ".columns." + iter.Label(),
				Message: err.Error(),
				Pos:     iter.Value().Pos(),
			}
		}
		t.Columns = append(t.Columns, querysql.ColumnDef{Name: iter.Label(), Type: typ})
	}

	if refsVal := v.LookupPath(cue.ParsePath("references")); refsVal.Exists() {
		refIter, err := refsVal.Fields()
		if err != nil {
			return Table{}, formatCUEError(err)
		}
		for refIter.Next() {
			target, err := refIter.Value().String()
			if err != nil {
				return Table{}, formatCUEError(err)
			}
			ref, ok := parseTarget(target)
			if !ok {
				return Table{}, &DefinitionError{
					Field:   field + ".references." + refIter.Label(),
					Message: fmt.Sprintf("reference %q must be \"table.column\"", target),
					Pos:     refIter.Value().Pos(),
				}
			}
			t.References[refIter.Label()] = ref
		}
	}

	// The relation constructor applies the identifier and primary-key rules.
	if _, err := queryir.From(t.Relation()); err != nil {
		return Table{}, &DefinitionError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return t, nil
}

// columnType accepts a CUE kind or a portable type name.
func columnType(v cue.Value) (querysql.ColumnType, error) {
	if s, err := v.String(); err == nil {
		return querysql.ParseColumnType(s)
	}
	switch v.IncompleteKind() {
	case cue.StringKind:
		return querysql.TypeText, nil
	case cue.IntKind:
		return querysql.TypeInteger, nil
	case cue.BoolKind:
		return querysql.TypeBoolean, nil
	case cue.FloatKind, cue.NumberKind:
		return "", fmt.Errorf("float types are forbidden - use int instead")
	default:
		return "", fmt.Errorf("unsupported type kind: %v", v.IncompleteKind())
	}
}

func parseTarget(s string) (queryir.ColumnRef, bool) {
	table, column, ok := strings.Cut(s, ".")
	if !ok || table == "" || column == "" || strings.Contains(column, ".") {
		return queryir.ColumnRef{}, false
	}
	return queryir.Col(table, column), true
}

func (c *Catalog) checkReferences() error {
	for _, t := range c.Tables() {
		for _, col := range sortedKeys(t.References) {
			ref := t.References[col]
			field := "table." + t.Name + ".references." + col
			if !slices.Contains(t.ColumnNames(), col) {
				return &DefinitionError{Field: field, Message: fmt.Sprintf("unknown column %q", col), Pos: t.Pos}
			}
			target, ok := c.tables[ref.Relation]
			if !ok {
				return &DefinitionError{Field: field, Message: fmt.Sprintf("unknown table %q", ref.Relation), Pos: t.Pos}
			}
			if !slices.Contains(target.ColumnNames(), ref.Column) {
				return &DefinitionError{Field: field, Message: fmt.Sprintf("unknown column %s", ref), Pos: t.Pos}
			}
		}
	}
	return nil
}

// Table returns the named table.
func (c *Catalog) Table(name string) (Table, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// Tables returns every table sorted by name.
func (c *Catalog) Tables() []Table {
	out := make([]Table, 0, len(c.tables))
	for _, name := range sortedKeys(c.tables) {
		out = append(out, c.tables[name])
	}
	return out
}

// Relation returns the named table as a relation.
func (c *Catalog) Relation(name string) (queryir.Relation, error) {
	t, ok := c.tables[name]
	if !ok {
		return queryir.Relation{}, fmt.Errorf("unknown table %q", name)
	}
	return t.Relation(), nil
}

// InferJoin builds the equi-join condition between a relation already in
// scope and the relation being joined, from the foreign key that links
// their tables. Exactly one foreign key must link them.
//
// A key on the joined table pointing at the scope table yields OneToMany
// (OneToOne when the key column is the joined table's primary key); a key
// on the scope table yields ManyToOne.
func (c *Catalog) InferJoin(scope, joined queryir.Relation) (queryir.JoinCondition, error) {
	from, ok := c.tables[scope.TableName()]
	if !ok {
		return queryir.JoinCondition{}, fmt.Errorf("infer join: %s is not a catalog table", scope)
	}
	to, ok := c.tables[joined.TableName()]
	if !ok {
		return queryir.JoinCondition{}, fmt.Errorf("infer join: %s is not a catalog table", joined)
	}

	var found []queryir.JoinCondition
	for _, col := range sortedKeys(to.References) {
		ref := to.References[col]
		if ref.Relation != from.Name {
			continue
		}
		card := queryir.OneToMany
		if col == to.PrimaryKey {
			card = queryir.OneToOne
		}
		found = append(found, queryir.On(
			queryir.Col(scope.Alias(), ref.Column),
			queryir.Col(joined.Alias(), col),
		).WithCardinality(card))
	}
	for _, col := range sortedKeys(from.References) {
		ref := from.References[col]
		if ref.Relation != to.Name {
			continue
		}
		// A self-reference was already found from the joined side.
		if from.Name == to.Name {
			continue
		}
		found = append(found, queryir.On(
			queryir.Col(scope.Alias(), col),
			queryir.Col(joined.Alias(), ref.Column),
		).WithCardinality(queryir.ManyToOne))
	}

	switch len(found) {
	case 0:
		return queryir.JoinCondition{}, fmt.Errorf("infer join: no reference links %s and %s", from.Name, to.Name)
	case 1:
		return found[0], nil
	default:
		return queryir.JoinCondition{}, fmt.Errorf("infer join: %d references link %s and %s; spell out the condition",
			len(found), from.Name, to.Name)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
