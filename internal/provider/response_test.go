package provider

import (
	"testing"

	"github.com/catalogai/doc-analyzer/internal/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONResponse(t *testing.T) {
	t.Run("DirectObject", func(t *testing.T) {
		m, err := ParseJSONResponse(`{"titulo":"x","autor":"y"}`)
		require.NoError(t, err)
		assert.Equal(t, "x", m["titulo"])
		assert.Equal(t, "y", m["autor"])
	})

	t.Run("CodeFencedObject", func(t *testing.T) {
		m, err := ParseJSONResponse("```json\n{\"titulo\":\"x\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "x", m["titulo"])
	})

	t.Run("ObjectEmbeddedInProse", func(t *testing.T) {
		m, err := ParseJSONResponse(`Sure! {"a":1} done.`)
		require.NoError(t, err)
		assert.Equal(t, float64(1), m["a"])
	})

	t.Run("NestedObject", func(t *testing.T) {
		m, err := ParseJSONResponse(`Here you go: {"outer":{"inner":[1,2]}} thanks`)
		require.NoError(t, err)
		assert.Contains(t, m, "outer")
	})

	t.Run("BracesInsideStrings", func(t *testing.T) {
		m, err := ParseJSONResponse(`{"note":"a } b { c"}`)
		require.NoError(t, err)
		assert.Equal(t, "a } b { c", m["note"])
	})

	t.Run("ProseWithoutBraces", func(t *testing.T) {
		_, err := ParseJSONResponse("I could not find any metadata in this document.")
		require.Error(t, err)
		assert.True(t, fault.IsKind(err, fault.KindJSONParse))
	})

	t.Run("UnbalancedBraces", func(t *testing.T) {
		_, err := ParseJSONResponse(`{"a": 1`)
		require.Error(t, err)
		assert.True(t, fault.IsKind(err, fault.KindJSONParse))
	})

	t.Run("NullIsNotAnObject", func(t *testing.T) {
		_, err := ParseJSONResponse("null")
		require.Error(t, err)
	})
}

func TestValidateMetadata(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"titulo"},
		"properties": map[string]any{
			"titulo": map[string]any{"type": "string", "minLength": 1},
		},
	}

	assert.NoError(t, ValidateMetadata(schema, map[string]any{"titulo": "Quijote"}))
	assert.Error(t, ValidateMetadata(schema, map[string]any{"titulo": ""}))
	assert.Error(t, ValidateMetadata(schema, map[string]any{"other": "x"}))
}
