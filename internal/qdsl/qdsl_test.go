package qdsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/queryir"
)

func TestParseColumn(t *testing.T) {
	ref, err := ParseColumn("activations.user_id")
	require.NoError(t, err)
	assert.Equal(t, queryir.Col("activations", "user_id"), ref)

	ref, err = ParseColumn("  user_id ")
	require.NoError(t, err)
	assert.Equal(t, queryir.ColumnRef{Column: "user_id"}, ref)
}

func TestParseColumn_Errors(t *testing.T) {
	for _, s := range []string{"", "a.", ".b", "a.b.c", "1abc", "a b"} {
		_, err := ParseColumn(s)
		assert.Error(t, err, s)
	}
}

func TestParseColumns(t *testing.T) {
	refs, err := ParseColumns("activations.user_id, plan")
	require.NoError(t, err)
	assert.Equal(t, []queryir.ColumnRef{
		queryir.Col("activations", "user_id"),
		{Column: "plan"},
	}, refs)

	_, err = ParseColumns("a,,b")
	assert.Error(t, err)
}

func TestParseCondition(t *testing.T) {
	on, err := ParseCondition("users.id = posts.user_id")
	require.NoError(t, err)
	assert.Equal(t, queryir.On(queryir.Col("users", "id"), queryir.Col("posts", "user_id")), on)

	_, err = ParseCondition("users.id")
	assert.Error(t, err)
	_, err = ParseCondition("users.id = posts.user_id = x")
	assert.Error(t, err)
}

func TestParseOrdering(t *testing.T) {
	terms, err := ParseOrdering("activations.user_id, activations.created_at desc, id ASC")
	require.NoError(t, err)
	assert.Equal(t, []queryir.OrderTerm{
		queryir.Asc(queryir.Col("activations", "user_id")),
		queryir.Desc(queryir.Col("activations", "created_at")),
		queryir.Asc(queryir.ColumnRef{Column: "id"}),
	}, terms)
}

func TestParseOrdering_KeywordPrefixedNames(t *testing.T) {
	terms, err := ParseOrdering("posts.desc_text DESC, ascent")
	require.NoError(t, err)
	assert.Equal(t, []queryir.OrderTerm{
		queryir.Desc(queryir.Col("posts", "desc_text")),
		queryir.Asc(queryir.ColumnRef{Column: "ascent"}),
	}, terms)
}

func TestParseOrdering_DirectionNamedColumns(t *testing.T) {
	terms, err := ParseOrdering("posts.desc DESC, asc, events.asc asc, desc Desc")
	require.NoError(t, err)
	assert.Equal(t, []queryir.OrderTerm{
		queryir.Desc(queryir.Col("posts", "desc")),
		queryir.Asc(queryir.ColumnRef{Column: "asc"}),
		queryir.Asc(queryir.Col("events", "asc")),
		queryir.Desc(queryir.ColumnRef{Column: "desc"}),
	}, terms)

	col, err := ParseColumn("posts.desc")
	require.NoError(t, err)
	assert.Equal(t, queryir.Col("posts", "desc"), col)

	cols, err := ParseColumns("asc, posts.desc")
	require.NoError(t, err)
	assert.Equal(t, []queryir.ColumnRef{{Column: "asc"}, queryir.Col("posts", "desc")}, cols)

	cond, err := ParseCondition("users.desc = posts.asc")
	require.NoError(t, err)
	assert.Equal(t, queryir.On(queryir.Col("users", "desc"), queryir.Col("posts", "asc")), cond)
}

func TestParseOrdering_Errors(t *testing.T) {
	for _, s := range []string{"", "a DESC DESC", "a,", "a sideways", "posts.id up"} {
		_, err := ParseOrdering(s)
		assert.Error(t, err, s)
	}
}
