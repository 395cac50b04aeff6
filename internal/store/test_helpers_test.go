package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/catalog"
	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

const testCatalog = `
table: users: columns: {
	id:   int
	name: string
}

table: posts: columns: {
	id:    int
	title: string
}

table: activations: {
	columns: {
		id:         int
		user_id:    int
		post_id:    int
		created_at: "timestamp"
	}
	references: {
		user_id: "users.id"
		post_id: "posts.id"
	}
}
`

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testCatalogValue(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse("test.cue", []byte(testCatalog))
	require.NoError(t, err)
	return cat
}

func row(columns []string, values ...any) ir.Row {
	r := ir.Row{Columns: columns, Values: make([]ir.IRValue, len(values))}
	for i, v := range values {
		val, err := ir.FromAny(v)
		if err != nil {
			panic(err)
		}
		r.Values[i] = val
	}
	return r
}

var activationCols = []string{"id", "user_id", "post_id", "created_at"}

// seedActivations loads three users whose latest activations are 2, 3
// and 5.
func seedActivations(t *testing.T, s Executor) *catalog.Catalog {
	t.Helper()
	cat := testCatalogValue(t)
	fixtures := []Fixture{
		{Table: "users", Rows: []ir.Row{
			row([]string{"id", "name"}, 1, "ada"),
			row([]string{"id", "name"}, 2, "grace"),
			row([]string{"id", "name"}, 3, "edsger"),
		}},
		{Table: "posts", Rows: []ir.Row{
			row([]string{"id", "title"}, 1, "First Post"),
			row([]string{"id", "title"}, 2, "Second Post"),
			row([]string{"id", "title"}, 3, "Third Post"),
		}},
		{Table: "activations", Rows: []ir.Row{
			row(activationCols, 1, 1, 1, "2024-01-01T00:00:00Z"),
			row(activationCols, 2, 1, 2, "2024-03-01T00:00:00Z"),
			row(activationCols, 3, 2, 3, "2024-02-01T00:00:00Z"),
			row(activationCols, 4, 2, 1, "2024-01-15T00:00:00Z"),
			row(activationCols, 5, 3, 2, "2024-01-10T00:00:00Z"),
		}},
	}
	require.NoError(t, Seed(context.Background(), s, cat, fixtures))
	return cat
}

func relation(t *testing.T, cat *catalog.Catalog, name string) queryir.Relation {
	t.Helper()
	rel, err := cat.Relation(name)
	require.NoError(t, err)
	return rel
}

func from(t *testing.T, rel queryir.Relation) queryir.Query {
	t.Helper()
	q, err := queryir.From(rel)
	require.NoError(t, err)
	return q
}

func latestPerUser(t *testing.T, q queryir.Query) queryir.Query {
	t.Helper()
	q, err := q.Project(queryir.DistinctOn(
		[]queryir.ColumnRef{queryir.Col("activations", "user_id")},
		queryir.Asc(queryir.Col("activations", "user_id")),
		queryir.Desc(queryir.Col("activations", "created_at")),
	))
	require.NoError(t, err)
	return q
}

func rowsOf(t *testing.T, s Executor, q queryir.Query) []ir.Row {
	t.Helper()
	text, err := querysql.Render(q, s.Dialect())
	require.NoError(t, err)
	rows, err := s.Rows(context.Background(), text)
	require.NoError(t, err)
	return rows
}

func countOf(t *testing.T, s Executor, q queryir.Query) int64 {
	t.Helper()
	cq, err := q.ToCountQuery()
	require.NoError(t, err)
	text, err := querysql.Render(cq, s.Dialect())
	require.NoError(t, err)
	n, err := s.Count(context.Background(), text)
	require.NoError(t, err)
	return n
}

func ids(t *testing.T, rows []ir.Row) []int64 {
	t.Helper()
	out := make([]int64, len(rows))
	for i, r := range rows {
		v, ok := r.Get("id")
		require.True(t, ok)
		id, ok := v.(ir.IRInt)
		require.True(t, ok, "id is %T", v)
		out[i] = int64(id)
	}
	return out
}
