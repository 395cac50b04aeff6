package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestFromAny(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"nil", nil, IRNull{}},
		{"string", "hello", IRString("hello")},
		{"bytes", []byte("raw"), IRString("raw")},
		{"bool", true, IRBool(true)},
		{"int", 7, IRInt(7)},
		{"int32", int32(-3), IRInt(-3)},
		{"int64", int64(1 << 40), IRInt(1 << 40)},
		{"uint8", uint8(200), IRInt(200)},
		{"integral float", float64(12), IRInt(12)},
		{"time", ts, IRString("2024-03-01T11:00:00Z")},
		{"already ir", IRString("x"), IRString("x")},
		{"list", []any{1, "a"}, IRArray{IRInt(1), IRString("a")}},
		{"map", map[string]any{"k": false}, IRObject{"k": IRBool(false)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.True(t, Equal(tt.expected, got), "expected %s, got %s", Format(tt.expected), Format(got))
		})
	}
}

func TestFromAnyRejectsFractionalFloat(t *testing.T) {
	_, err := FromAny(1.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")

	_, err = FromAny([]any{"ok", 0.25})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[1]")
}

func TestFromAnyRejectsUnknownType(t *testing.T) {
	_, err := FromAny(struct{}{})
	require.Error(t, err)
}

func TestToParam(t *testing.T) {
	p, err := ToParam(IRString("s"))
	require.NoError(t, err)
	assert.Equal(t, "s", p)

	p, err = ToParam(IRInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), p)

	p, err = ToParam(IRNull{})
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = ToParam(IRArray{})
	assert.Error(t, err)
	_, err = ToParam(IRObject{})
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(IRInt(1), IRInt(1)))
	assert.False(t, Equal(IRInt(1), IRString("1")))
	assert.True(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1)}))
	assert.False(t, Equal(IRArray{IRInt(1)}, IRArray{IRInt(1), IRInt(2)}))
	assert.True(t, Equal(IRObject{"a": IRNull{}}, IRObject{"a": IRNull{}}))
	assert.False(t, Equal(IRObject{"a": IRNull{}}, IRObject{"b": IRNull{}}))
	assert.False(t, Equal(IRArray{}, IRObject{}))
}

func TestRow(t *testing.T) {
	row := Row{
		Columns: []string{"id", "title"},
		Values:  []IRValue{IRInt(2), IRString("Second")},
	}

	v, ok := row.Get("title")
	require.True(t, ok)
	assert.Equal(t, IRString("Second"), v)

	_, ok = row.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, IRObject{"id": IRInt(2), "title": IRString("Second")}, row.Object())
	assert.Equal(t, `{id=2, title="Second"}`, row.String())
}
