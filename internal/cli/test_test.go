package cli

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestCommand_NoGolden(t *testing.T) {
	out, _, err := execute(t, testFs(t), "test", "/s")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ posts")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_UpdateThenMatch(t *testing.T) {
	fs := testFs(t)

	out, _, err := execute(t, fs, "test", "/s", "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ posts (golden updated)")

	golden, err := afero.ReadFile(fs, "/s/golden/posts.golden")
	require.NoError(t, err)
	assert.Contains(t, string(golden), "scenario: posts\n")
	assert.Contains(t, string(golden), "count: 1\n")

	out, _, err = execute(t, fs, "test", "/s")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ posts")
	assert.NotContains(t, out, "golden updated")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	fs := testFs(t)
	require.NoError(t, afero.WriteFile(fs, "/s/golden/posts.golden", []byte("scenario: posts\n"), 0o644))

	out, _, err := execute(t, fs, "test", "/s")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ posts")
	assert.Contains(t, out, "does not match golden file")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_Filter(t *testing.T) {
	fs := testFs(t)
	require.NoError(t, afero.WriteFile(fs, "/s/rejected.yaml", []byte(rejectedScenario), 0o644))

	out, _, err := execute(t, fs, "test", "/s", "--filter", "po*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")

	out, _, err = execute(t, fs, "test", "/s")
	require.Error(t, err)
	assert.Contains(t, out, "✗ rejected")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_InvalidFilter(t *testing.T) {
	_, _, err := execute(t, testFs(t), "test", "/s", "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_LoadError(t *testing.T) {
	fs := testFs(t)
	require.NoError(t, afero.WriteFile(fs, "/s/broken.yaml", []byte("format: \"1.0\"\nname: broken\n"), 0o644))

	out, _, err := execute(t, fs, "test", "/s")
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, testFs(t), "test", "/nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_NoScenarios(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	out, _, err := execute(t, fs, "test", "/empty")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_JSON(t *testing.T) {
	out, _, err := execute(t, testFs(t), "test", "/s", "--format", "json")
	require.NoError(t, err)

	var data TestResult
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, data.Total)
	assert.Equal(t, 1, data.Passed)
	require.Len(t, data.Scenarios, 1)
	assert.Equal(t, "posts", data.Scenarios[0].Name)
	assert.Equal(t, "/s/posts.yaml", data.Scenarios[0].File)
	assert.Equal(t, "missing", data.Scenarios[0].Golden)
}

func TestFilterScenarios(t *testing.T) {
	files := []string{"/s/a.yaml", "/s/latest_one.yml", "/s/latest_two.yaml"}

	got, err := filterScenarios(files, "latest_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"/s/latest_one.yml", "/s/latest_two.yaml"}, got)

	got, err = filterScenarios(files, "")
	require.NoError(t, err)
	assert.Equal(t, files, got)
}
