package auditlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRow(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&testDoc{}))
	m, err := r.ModelByLogName("library.doc")
	require.NoError(t, err)

	got := normalizeRow(m.Schema, map[string]any{
		"id":    []byte("9"),
		"body":  `"123"`,
		"raw":   "\xd7\x6d\xf8",
		"extra": []byte("x"),
	})
	assert.Equal(t, map[string]any{
		"id":    "9",
		"body":  "123",
		"raw":   []byte{0xd7, 0x6d, 0xf8},
		"extra": "x",
	}, got)

	got = normalizeRow(m.Schema, map[string]any{"body": []byte(`{"a":[1,2]}`)})
	assert.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, got["body"])

	got = normalizeRow(m.Schema, map[string]any{"body": "not json"})
	assert.Equal(t, "not json", got["body"])
}
