package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	a, err := Fingerprint(DomainQueryText, map[string]any{"sql": "SELECT 1", "args": []any{}})
	require.NoError(t, err)
	b, err := Fingerprint(DomainQueryText, map[string]any{"args": []any{}, "sql": "SELECT 1"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDomainSeparation(t *testing.T) {
	a, err := Fingerprint(DomainQueryText, "x")
	require.NoError(t, err)
	b, err := Fingerprint(DomainRowSet, "x")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestRowSetFingerprintOrderSensitive(t *testing.T) {
	r1 := Row{Columns: []string{"id"}, Values: []IRValue{IRInt(1)}}
	r2 := Row{Columns: []string{"id"}, Values: []IRValue{IRInt(2)}}

	a, err := RowSetFingerprint([]Row{r1, r2})
	require.NoError(t, err)
	b, err := RowSetFingerprint([]Row{r2, r1})
	require.NoError(t, err)
	c, err := RowSetFingerprint([]Row{r1, r2})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, c)
}
