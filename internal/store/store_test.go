package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/querysql"
)

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.Equal(t, querysql.SQLite, s.Dialect())
}

func TestOpen_InMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	seedActivations(t, s)
	assert.Equal(t, int64(5), countOf(t, s, from(t, relation(t, testCatalogValue(t), "activations"))))
}

func TestSeed_UnknownTableAndColumn(t *testing.T) {
	ctx := context.Background()
	cat := testCatalogValue(t)

	err := Seed(ctx, createTestStore(t), cat, []Fixture{{Table: "comments"}})
	assert.ErrorContains(t, err, "unknown table")

	err = Seed(ctx, createTestStore(t), cat, []Fixture{{Table: "users", Rows: []ir.Row{
		row([]string{"id", "email"}, 1, "a@example.com"),
	}}})
	assert.ErrorContains(t, err, "unknown column")
}

func TestRows_ColumnNamesAndValues(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	rows := rowsOf(t, s, from(t, relation(t, cat, "users")))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "name"}, rows[0].Columns)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRString("ada")}, rows[0].Values)
}

func TestRows_EmptyResultIsNotNil(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	q, err := from(t, relation(t, cat, "users")).FilterByIDs()
	require.NoError(t, err)

	rows := rowsOf(t, s, q)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestDedupe_KeepsLatestRowPerKey(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	rows := rowsOf(t, s, latestPerUser(t, from(t, relation(t, cat, "activations"))))

	assert.Equal(t, []int64{2, 3, 5}, ids(t, rows))
	assert.Equal(t, activationCols, rows[0].Columns)
}

func TestCount_MatchesRowCount(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	raw := from(t, relation(t, cat, "activations"))
	assert.Equal(t, int64(len(rowsOf(t, s, raw))), countOf(t, s, raw))

	paged, err := raw.Paginate(2, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), countOf(t, s, paged))
	assert.Len(t, rowsOf(t, s, paged), 2)

	rel, err := latestPerUser(t, raw).AsSubquery("latest")
	require.NoError(t, err)
	wrapped := from(t, rel)
	assert.Equal(t, int64(len(rowsOf(t, s, wrapped))), countOf(t, s, wrapped))
	assert.Equal(t, int64(3), countOf(t, s, wrapped))
}

func TestCount_RejectedOnDedupe(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	_, err := latestPerUser(t, from(t, relation(t, cat, "activations"))).ToCountQuery()
	assert.True(t, queryir.IsUnsupportedOnDeduplicated(err))
}

func TestWrapped_FilterAndOrderMatchInMemory(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	inner := latestPerUser(t, from(t, relation(t, cat, "activations")))
	innerRows := rowsOf(t, s, inner)

	rel, err := inner.AsSubquery("latest")
	require.NoError(t, err)

	filtered, err := from(t, rel).Filter(queryir.Equals{Column: queryir.Col("latest", "post_id"), Value: ir.IRInt(2)})
	require.NoError(t, err)

	var want []int64
	for _, r := range innerRows {
		if v, _ := r.Get("post_id"); ir.Equal(v, ir.IRInt(2)) {
			id, _ := r.Get("id")
			want = append(want, int64(id.(ir.IRInt)))
		}
	}
	assert.Equal(t, want, ids(t, rowsOf(t, s, filtered)))

	ordered, err := from(t, rel).OrderBy(queryir.Desc(queryir.Col("latest", "created_at")))
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 5}, ids(t, rowsOf(t, s, ordered)))

	paged, err := ordered.Paginate(1, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids(t, rowsOf(t, s, paged)))
}

func TestFilterByIDs_OnDedupeReturnsSubset(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	q, err := latestPerUser(t, from(t, relation(t, cat, "activations"))).
		FilterByIDs(ir.IRInt(2), ir.IRInt(4), ir.IRInt(5))
	require.NoError(t, err)

	// 4 is not a latest row, so it is not resurrected.
	assert.Equal(t, []int64{2, 5}, ids(t, rowsOf(t, s, q)))
}

func TestFilterByIDs_BeforeDedupeNarrowsInput(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)
	acts := from(t, relation(t, cat, "activations"))

	byIDs, err := acts.FilterByIDs(ir.IRInt(1), ir.IRInt(4))
	require.NoError(t, err)
	byColumn, err := acts.Filter(queryir.In{
		Column: queryir.Col("activations", "id"),
		Values: []ir.IRValue{ir.IRInt(1), ir.IRInt(4)},
	})
	require.NoError(t, err)

	// Neither 1 nor 4 is a user's latest activation overall, but each is the
	// latest among the chosen rows.
	assert.Equal(t, []int64{1, 4}, ids(t, rowsOf(t, s, latestPerUser(t, byIDs))))
	assert.Equal(t, []int64{1, 4}, ids(t, rowsOf(t, s, latestPerUser(t, byColumn))))

	narrowed, err := latestPerUser(t, byIDs).FilterByIDs(ir.IRInt(4), ir.IRInt(5))
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids(t, rowsOf(t, s, narrowed)))
}

func TestFilterByIDs_IntersectsFilters(t *testing.T) {
	s := createTestStore(t)
	cat := seedActivations(t, s)

	q, err := from(t, relation(t, cat, "activations")).
		Filter(queryir.Equals{Column: queryir.Col("activations", "user_id"), Value: ir.IRInt(2)})
	require.NoError(t, err)
	q, err = q.FilterByIDs(ir.IRInt(2), ir.IRInt(3), ir.IRInt(4))
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids(t, rowsOf(t, s, q)))

	q, err = q.FilterByIDs(ir.IRInt(4), ir.IRInt(5))
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, ids(t, rowsOf(t, s, q)))
}

func TestLatestActivationAcrossJoin(t *testing.T) {
	s := createTestStore(t)
	cat := testCatalogValue(t)
	require.NoError(t, Seed(context.Background(), s, cat, []Fixture{
		{Table: "users", Rows: []ir.Row{row([]string{"id", "name"}, 1, "ada")}},
		{Table: "posts", Rows: []ir.Row{
			row([]string{"id", "title"}, 1, "First Post"),
			row([]string{"id", "title"}, 2, "Second Post"),
		}},
		{Table: "activations", Rows: []ir.Row{
			row(activationCols, 1, 1, 1, "2024-01-01T00:00:00Z"),
			row(activationCols, 2, 1, 2, "2024-02-01T00:00:00Z"),
		}},
	}))

	posts := relation(t, cat, "posts")
	activations := relation(t, cat, "activations")
	on, err := cat.InferJoin(posts, activations)
	require.NoError(t, err)

	q, err := from(t, posts).Join(activations, on)
	require.NoError(t, err)
	latest := latestPerUser(t, q)

	_, err = latest.ToCountQuery()
	require.True(t, queryir.IsUnsupportedOnDeduplicated(err))

	rel, err := latest.AsSubquery("latest_posts")
	require.NoError(t, err)
	wrapped := from(t, rel)
	assert.Equal(t, int64(1), countOf(t, s, wrapped))

	byTitle := func(title string) []ir.Row {
		q, err := wrapped.Filter(queryir.Equals{Column: queryir.Col("latest_posts", "title"), Value: ir.IRString(title)})
		require.NoError(t, err)
		return rowsOf(t, s, q)
	}
	assert.Empty(t, byTitle("First Post"))

	rows := byTitle("Second Post")
	require.Len(t, rows, 1)
	assert.Equal(t, []ir.IRValue{ir.IRInt(2), ir.IRString("Second Post")}, rows[0].Values)
}

func TestExecutionFailed(t *testing.T) {
	s := createTestStore(t)

	q := from(t, queryir.Table("missing", "id"))
	text, err := querysql.Render(q, querysql.SQLite)
	require.NoError(t, err)

	_, err = s.Rows(context.Background(), text)
	require.Error(t, err)
	assert.True(t, IsExecutionFailed(err))

	var ee *ExecutionError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "rows", ee.Op)
	assert.Equal(t, text.SQL, ee.SQL)
	assert.Contains(t, err.Error(), "no such table")

	cq, err := q.ToCountQuery()
	require.NoError(t, err)
	ctext, err := querysql.Render(cq, querysql.SQLite)
	require.NoError(t, err)
	_, err = s.Count(context.Background(), ctext)
	assert.True(t, IsExecutionFailed(err))
}

func TestDialectMismatchIsNotExecutionFailure(t *testing.T) {
	s := createTestStore(t)

	text, err := querysql.Render(from(t, queryir.Table("users", "id")), querysql.Postgres)
	require.NoError(t, err)

	_, err = s.Rows(context.Background(), text)
	require.Error(t, err)
	assert.False(t, IsExecutionFailed(err))
}

func TestWithLogger_LogsStatements(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := Open(":memory:", WithLogger(logger))
	require.NoError(t, err)
	defer s.Close()

	seedActivations(t, s)
	assert.Contains(t, buf.String(), "executing statement")
	assert.Contains(t, buf.String(), "dialect=sqlite")
}

func TestOpenExecutor(t *testing.T) {
	exec, err := OpenExecutor(context.Background(), querysql.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { exec.Close() })
	assert.Equal(t, querysql.SQLite, exec.Dialect())

	_, err = OpenExecutor(context.Background(), querysql.Dialect("oracle"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no executor for dialect "oracle"`)
}
