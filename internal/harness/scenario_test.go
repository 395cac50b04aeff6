package harness

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memCatalog = `
table: users: columns: {id: int, name: string}
table: posts: {
	columns: {id: int, user_id: int, title: string}
	references: user_id: "users.id"
}
`

// memFs returns an in-memory filesystem holding the catalog and one
// scenario file.
func memFs(t *testing.T, scenario string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/s/catalog.cue", []byte(memCatalog), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/s/scenario.yaml", []byte(scenario), 0o644))
	return fs
}

const minimalScenario = `
format: "1.0"
name: minimal
description: minimal scenario
catalog: catalog.cue
queries:
  all_posts:
    from: posts
steps:
  - name: render posts
    query: all_posts
    op: render
`

func TestLoadScenario_Valid(t *testing.T) {
	fs := memFs(t, minimalScenario)

	s, err := LoadScenario(fs, "/s/scenario.yaml")
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, "/s/catalog.cue", s.Catalog, "catalog path is resolved relative to the scenario")
	require.Contains(t, s.Queries, "all_posts")
	assert.Equal(t, "posts", s.Queries["all_posts"].From)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, OpRender, s.Steps[0].Op)
}

func TestLoadScenario_IDsDistinguishEmptyFromAbsent(t *testing.T) {
	fs := memFs(t, `
format: "1.0"
name: ids
description: ids
catalog: catalog.cue
queries:
  none:
    from: posts
    ids: []
  unset:
    from: posts
steps:
  - { name: a, query: none, op: render }
`)
	s, err := LoadScenario(fs, "/s/scenario.yaml")
	require.NoError(t, err)

	require.NotNil(t, s.Queries["none"].IDs)
	assert.Empty(t, *s.Queries["none"].IDs)
	assert.Nil(t, s.Queries["unset"].IDs)
}

func TestLoadScenario_RejectsUnknownFields(t *testing.T) {
	fs := memFs(t, minimalScenario+"\nassertions: []\n")

	_, err := LoadScenario(fs, "/s/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(afero.NewMemMapFs(), "/nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name     string
		scenario string
		wantErr  string
	}{
		{
			name:     "missing format",
			scenario: "name: x\ndescription: d\ncatalog: catalog.cue\n",
			wantErr:  "format is required",
		},
		{
			name:     "unsupported format",
			scenario: "format: \"2.1\"\nname: x\n",
			wantErr:  "format 2.1 is not supported",
		},
		{
			name:     "malformed format",
			scenario: "format: \"one\"\nname: x\n",
			wantErr:  `format "one"`,
		},
		{
			name:     "missing name",
			scenario: "format: \"1.0\"\ndescription: d\n",
			wantErr:  "name is required",
		},
		{
			name:     "missing catalog file",
			scenario: "format: \"1.0\"\nname: x\ndescription: d\ncatalog: other.cue\n",
			wantErr:  "catalog file not found",
		},
		{
			name:     "no steps",
			scenario: "format: \"1.0\"\nname: x\ndescription: d\ncatalog: catalog.cue\nqueries: {q: {from: posts}}\n",
			wantErr:  "steps list is required",
		},
		{
			name: "from and subquery_of",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
  b: {from: posts, subquery_of: a, alias: w}
steps: [{name: s, query: a, op: render}]
`,
			wantErr: "queries.b: from and subquery_of are mutually exclusive",
		},
		{
			name: "subquery without alias",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
  b: {subquery_of: a}
steps: [{name: s, query: a, op: render}]
`,
			wantErr: "queries.b: alias is required with subquery_of",
		},
		{
			name: "cardinality without on",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: users, joins: [{table: posts, cardinality: one_to_many}]}
steps: [{name: s, query: a, op: render}]
`,
			wantErr: "cardinality requires on",
		},
		{
			name: "unknown step query",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
steps: [{name: s, query: b, op: render}]
`,
			wantErr: `steps[0]: unknown query "b"`,
		},
		{
			name: "unknown op",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
steps: [{name: s, query: a, op: explain}]
`,
			wantErr: "op must be one of render, rows, count",
		},
		{
			name: "unknown error code",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
steps: [{name: s, query: a, op: count, expect_error: BROKEN}]
`,
			wantErr: `unknown expect_error code "BROKEN"`,
		},
		{
			name: "expect_count on rows",
			scenario: `format: "1.0"
name: x
description: d
catalog: catalog.cue
queries:
  a: {from: posts}
steps: [{name: s, query: a, op: rows, expect_count: 1}]
`,
			wantErr: "expect_count requires op count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := memFs(t, tt.scenario)
			_, err := LoadScenario(fs, "/s/scenario.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, p := range []string{"/d/b.yaml", "/d/a.yml", "/d/nested/c.yaml", "/d/catalog.cue", "/d/notes.txt"} {
		require.NoError(t, afero.WriteFile(fs, p, []byte("x"), 0o644))
	}

	paths, err := FindScenarios(fs, "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"/d/a.yml", "/d/b.yaml", "/d/nested/c.yaml"}, paths)
}

func TestFindScenarios_MissingDir(t *testing.T) {
	_, err := FindScenarios(afero.NewMemMapFs(), "/missing")
	require.Error(t, err)
}
