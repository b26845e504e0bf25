package trace

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_Basic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"empty string", "", `""`},
		{"null", nil, "null"},
		{"int", 42, "42"},
		{"negative int64", int64(-100), "-100"},
		{"integral float", 54.0, "54"},
		{"fraction", 54.5, "54.5"},
		{"bool", true, "true"},
		{"empty array", []any{}, "[]"},
		{"string slice", []string{"a", "b"}, `["a","b"]`},
		{"empty object", map[string]any{}, "{}"},
		{"string map", map[string]string{"b": "2", "a": "1"}, `{"a":"1","b":"2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonical_SortedNestedKeys(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"zebra": map[string]any{"b": 1, "a": 2},
		"alpha": []any{map[string]any{"y": true, "x": false}},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":[{"x":false,"y":true}],"zebra":{"a":2,"b":1}}`, string(out))
}

func TestMarshalCanonical_UTF16KeyOrder(t *testing.T) {
	// U+1F600 encodes as the surrogate pair D83D DE00, which sorts before
	// U+FB01 (FB01) in UTF-16 although it sorts after it in UTF-8.
	out, err := MarshalCanonical(map[string]any{"\ufb01": 1, "\U0001F600": 2})
	require.NoError(t, err)
	assert.Equal(t, "{\"\U0001F600\":2,\"\ufb01\":1}", string(out))
}

func TestMarshalCanonical_Strings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no html escaping", "<a & b>", `"<a & b>"`},
		{"quote and backslash", `say "hi" \o/`, `"say \"hi\" \\o/"`},
		{"control characters", "a\nb\tc\x01", `"a\nb\tc\u0001"`},
		{"line separator kept", "a\u2028b", "\"a\u2028b\""},
		{"nfc", "cafe\u0301", "\"caf\u00e9\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(math.NaN())
	assert.Error(t, err)

	_, err = MarshalCanonical(map[string]any{"k": struct{}{}})
	assert.ErrorContains(t, err, "unsupported type")

	_, err = MarshalCanonical(map[string]any{"caf\u00e9": 1, "cafe\u0301": 2})
	assert.ErrorContains(t, err, "duplicate key")
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	v := map[string]any{"a": 1, "b": []any{"x", 2.5}, "c": map[string]any{"d": nil}}
	first, err := MarshalCanonical(v)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := MarshalCanonical(v)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
