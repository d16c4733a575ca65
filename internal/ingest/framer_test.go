package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	t.Run("single line object", func(t *testing.T) {
		obj, remainder, ok := ExtractJSONObject(`{"message":"hi"}` + "\n")
		require.True(t, ok)
		assert.Equal(t, `{"message":"hi"}`, obj)
		assert.Empty(t, remainder)
	})

	t.Run("incomplete object waits for more input", func(t *testing.T) {
		_, _, ok := ExtractJSONObject("{\n  \"message\": \"m\",\n")
		assert.False(t, ok)
	})

	t.Run("pretty printed object across multiple lines", func(t *testing.T) {
		buf := "{\n  \"message\": \"m\",\n  \"level\": \"warn\"\n}\n"
		obj, remainder, ok := ExtractJSONObject(buf)
		require.True(t, ok)
		assert.JSONEq(t, `{"message":"m","level":"warn"}`, obj)
		assert.Empty(t, remainder)
	})

	t.Run("braces inside a quoted string do not affect depth", func(t *testing.T) {
		obj, _, ok := ExtractJSONObject(`{"message":"a { b } c"}` + "\n")
		require.True(t, ok)
		assert.JSONEq(t, `{"message":"a { b } c"}`, obj)
	})

	t.Run("escaped quote inside a string is not a terminator", func(t *testing.T) {
		obj, _, ok := ExtractJSONObject(`{"message":"a \"quoted\" b"}` + "\n")
		require.True(t, ok)
		assert.Contains(t, obj, `\"quoted\"`)
	})

	t.Run("remainder after object carries trailing data", func(t *testing.T) {
		obj, remainder, ok := ExtractJSONObject(`{"a":1}` + "trailing")
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, obj)
		assert.Equal(t, "trailing", remainder)
	})

	t.Run("plain text with no braces never completes", func(t *testing.T) {
		_, _, ok := ExtractJSONObject("just some text\n")
		assert.False(t, ok)
	})
}
