package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relq/internal/ir"
)

func TestValidate_CleanQuery(t *testing.T) {
	result := Validate(latestActivations(t))

	assert.True(t, result.Clean)
	assert.Empty(t, result.Warnings)
}

func TestValidate_OneToManyJoin(t *testing.T) {
	q, err := mustFrom(t, users).Join(posts,
		On(Col("users", "id"), Col("posts", "user_id")).WithCardinality(OneToMany))
	require.NoError(t, err)

	result := Validate(q)
	assert.False(t, result.Clean)
	assert.Equal(t, []string{"join posts is one-to-many; each users row may appear more than once"}, result.Warnings)
}

func TestValidate_OneToManyJoinUnderDedupe(t *testing.T) {
	q, err := mustFrom(t, users).Join(posts,
		On(Col("users", "id"), Col("posts", "user_id")).WithCardinality(OneToMany))
	require.NoError(t, err)
	q, err = q.Project(DistinctOn([]ColumnRef{Col("users", "id")}, Asc(Col("users", "id"))))
	require.NoError(t, err)

	assert.True(t, Validate(q).Clean)
}

func TestValidate_PredicateShapes(t *testing.T) {
	q, err := mustFrom(t, users).Filter(And{Predicates: []Predicate{
		Equals{Column: Col("users", "name"), Value: ir.IRNull{}},
		In{Column: Col("users", "id")},
	}})
	require.NoError(t, err)
	q, err = q.FilterByIDs()
	require.NoError(t, err)

	result := Validate(q)
	assert.Equal(t, []string{
		"users.name = NULL renders as IS NULL",
		"users.id IN () matches no rows",
		"identifier filter is empty; the query matches no rows",
	}, result.Warnings)
}

func TestValidate_PaginationWithoutOrdering(t *testing.T) {
	q, err := mustFrom(t, users).Paginate(10, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"pagination without an explicit ordering pages by users.id"}, Validate(q).Warnings)
}

func TestValidate_DescendsIntoSubqueries(t *testing.T) {
	inner, err := mustFrom(t, users).Paginate(10, 0)
	require.NoError(t, err)
	rel, err := inner.AsSubquery("page")
	require.NoError(t, err)

	result := Validate(mustFrom(t, rel))
	assert.Equal(t, []string{"page: pagination without an explicit ordering pages by users.id"}, result.Warnings)
}
