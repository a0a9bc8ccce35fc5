package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanDropsTopLevelFields(t *testing.T) {
	input := map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"title":                "Example",
		"examples":             []any{"a"},
		"additionalProperties": false,
		"type":                 "object",
	}

	out := Clean(input)

	assert.NotContains(t, out, "$schema")
	assert.NotContains(t, out, "title")
	assert.NotContains(t, out, "examples")
	assert.NotContains(t, out, "additionalProperties")
	assert.Equal(t, "object", out["type"])
}

func TestCleanStripsFormatOnlyForStringType(t *testing.T) {
	stringNode := map[string]any{"type": "string", "format": "date-time"}
	numberNode := map[string]any{"type": "number", "format": "float"}

	assert.NotContains(t, Clean(stringNode), "format")
	assert.Contains(t, Clean(numberNode), "format")
}

func TestCleanRecursesIntoPropertiesAndItems(t *testing.T) {
	input := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "format": "email", "title": "Name"},
			"tags": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":    "string",
					"title":   "Tag",
					"$schema": "nope",
				},
			},
		},
	}

	out := Clean(input)
	props, ok := out["properties"].(map[string]any)
	require.True(t, ok)

	name, ok := props["name"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, name, "format")
	assert.NotContains(t, name, "title")

	tags, ok := props["tags"].(map[string]any)
	require.True(t, ok)
	items, ok := tags["items"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, items, "title")
	assert.NotContains(t, items, "$schema")
}

func TestCleanIsIdempotent(t *testing.T) {
	input := map[string]any{
		"type":  "object",
		"title": "Example",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "format": "email"},
		},
	}

	once := Clean(input)
	twice := Clean(once)
	assert.Equal(t, once, twice)
}

func TestCleanHandlesNilAndDepthBound(t *testing.T) {
	assert.Nil(t, Clean(nil))

	// Build a deeply nested structure beyond maxDepth and confirm it does
	// not panic or infinite-loop.
	var deepest map[string]any = map[string]any{"type": "string", "format": "x"}
	node := deepest
	for i := 0; i < maxDepth+5; i++ {
		node = map[string]any{"properties": map[string]any{"child": node}}
	}
	assert.NotPanics(t, func() { Clean(node) })
}
