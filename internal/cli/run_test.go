package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runData is the subset of a JSON run result the tests inspect. Rendered
// parameters are left out since they decode as interface values.
type runData struct {
	Pass  bool   `json:"pass"`
	RunID string `json:"run_id"`
	Steps []struct {
		Name      string `json:"name"`
		ErrorCode string `json:"error_code"`
		Count     *int64 `json:"count"`

		RowsFingerprint string `json:"rows_fingerprint"`
	} `json:"steps"`
	Errors []string `json:"errors"`
}

func TestRun_Passes(t *testing.T) {
	out, _, err := execute(t, testFs(t), "run", "/s/posts.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "✓ latest post per user")
	assert.Contains(t, out, "✓ count grace")
	assert.Contains(t, out, "2 step(s), 0 failure(s)")
}

func TestRun_Verbose(t *testing.T) {
	_, stderr, err := execute(t, testFs(t), "run", "/s/posts.yaml", "--verbose")
	require.NoError(t, err)

	assert.Contains(t, stderr, `SELECT COUNT(*) FROM "users" WHERE "users"."name" = ?`)
	assert.Contains(t, stderr, "running scenario")
}

func TestRun_Failure(t *testing.T) {
	out, _, err := execute(t, rejectedFs(t), "run", "/r/rejected.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out, "✗ count latest")
	assert.Contains(t, out, "unexpected error")
	assert.Contains(t, out, "1 step(s), 1 failure(s)")
}

func TestRun_JSON(t *testing.T) {
	out, _, err := execute(t, testFs(t), "run", "/s/posts.yaml", "--format", "json")
	require.NoError(t, err)

	var data runData
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, data.Pass)
	assert.Equal(t, data.RunID, resp.TraceID, "the run id is the trace id")
	require.Len(t, data.Steps, 2)
	assert.NotEmpty(t, data.Steps[0].RowsFingerprint)
	require.NotNil(t, data.Steps[1].Count)
	assert.Equal(t, int64(1), *data.Steps[1].Count)
}

func TestRun_JSONFailure(t *testing.T) {
	out, _, err := execute(t, rejectedFs(t), "run", "/r/rejected.yaml", "--format", "json")
	require.Error(t, err)

	var data runData
	resp := decodeResponse(t, out, &data)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScenarioFailed, resp.Error.Code)
	assert.False(t, data.Pass)
	require.Len(t, data.Steps, 1)
	assert.Equal(t, "UNSUPPORTED_ON_DEDUPLICATED", data.Steps[0].ErrorCode)
}

func TestRun_UnknownDriver(t *testing.T) {
	_, _, err := execute(t, testFs(t), "run", "/s/posts.yaml", "--driver", "oracle")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_MissingScenario(t *testing.T) {
	_, _, err := execute(t, testFs(t), "run", "/s/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
