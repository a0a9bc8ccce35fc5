package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClaudeRequestBasicFields(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"stream": true,
		"max_tokens": 256,
		"temperature": 0.5,
		"top_p": 0.9,
		"stop_sequences": ["\n\n", "STOP"],
		"system": "be terse",
		"messages": [
			{"role": "user", "content": "hi"}
		]
	}`)

	cm := ParseClaudeRequest(raw)

	assert.Equal(t, "claude-3-opus", cm.Model)
	assert.True(t, cm.Stream)
	assert.Equal(t, 256, cm.MaxTokens)
	require.NotNil(t, cm.Temperature)
	assert.Equal(t, 0.5, *cm.Temperature)
	require.NotNil(t, cm.TopP)
	assert.Equal(t, 0.9, *cm.TopP)
	assert.Equal(t, []string{"\n\n", "STOP"}, cm.StopSequences)
	assert.Equal(t, "be terse", cm.System)

	require.Len(t, cm.Messages, 1)
	assert.Equal(t, RoleUser, cm.Messages[0].Role)
	require.Len(t, cm.Messages[0].Content, 1)
	assert.Equal(t, BlockText, cm.Messages[0].Content[0].Type)
	assert.Equal(t, "hi", cm.Messages[0].Content[0].Text)
}

func TestParseClaudeRequestSystemAsBlockArray(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"system": [
			{"type": "text", "text": "part one. "},
			{"type": "text", "text": "part two."}
		],
		"messages": []
	}`)

	cm := ParseClaudeRequest(raw)
	assert.Equal(t, "part one. part two.", cm.System)
}

func TestParseClaudeRequestToolUseAndToolResultBlocks(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"messages": [
			{
				"role": "assistant",
				"content": [
					{"type": "tool_use", "id": "tu_1", "name": "get_weather", "input": {"city": "SF"}}
				]
			},
			{
				"role": "user",
				"content": [
					{"type": "tool_result", "tool_use_id": "tu_1", "content": "sunny"}
				]
			}
		]
	}`)

	cm := ParseClaudeRequest(raw)
	require.Len(t, cm.Messages, 2)

	toolUse := cm.Messages[0].Content[0]
	assert.Equal(t, BlockToolUse, toolUse.Type)
	assert.Equal(t, "tu_1", toolUse.ToolUseID)
	assert.Equal(t, "get_weather", toolUse.ToolName)
	assert.Equal(t, "SF", toolUse.ToolInput["city"])

	toolResult := cm.Messages[1].Content[0]
	assert.Equal(t, BlockToolResult, toolResult.Type)
	assert.Equal(t, "tu_1", toolResult.ToolResultID)
	assert.Equal(t, "sunny", toolResult.ToolResultContent)
	assert.False(t, toolResult.ToolResultError)
}

func TestParseClaudeRequestToolResultContentAsBlockArray(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"messages": [
			{
				"role": "user",
				"content": [
					{
						"type": "tool_result",
						"tool_use_id": "tu_2",
						"is_error": true,
						"content": [
							{"type": "text", "text": "failed: "},
							{"type": "text", "text": "not found"}
						]
					}
				]
			}
		]
	}`)

	cm := ParseClaudeRequest(raw)
	block := cm.Messages[0].Content[0]
	assert.Equal(t, BlockToolResult, block.Type)
	assert.True(t, block.ToolResultError)
	assert.Equal(t, "failed: not found", block.ToolResultContent)
}

func TestParseClaudeRequestImageBlock(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"messages": [
			{
				"role": "user",
				"content": [
					{"type": "image", "source": {"media_type": "image/png", "data": "abcd"}}
				]
			}
		]
	}`)

	cm := ParseClaudeRequest(raw)
	block := cm.Messages[0].Content[0]
	assert.Equal(t, BlockImage, block.Type)
	assert.Equal(t, "image/png", block.ImageMediaType)
	assert.Equal(t, "abcd", block.ImageData)
}

func TestParseClaudeRequestTools(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"messages": [],
		"tools": [
			{
				"name": "get_weather",
				"description": "fetch weather",
				"input_schema": {"type": "object", "properties": {"city": {"type": "string"}}}
			}
		]
	}`)

	cm := ParseClaudeRequest(raw)
	require.Len(t, cm.Tools, 1)
	assert.Equal(t, "get_weather", cm.Tools[0].Name)
	assert.Equal(t, "fetch weather", cm.Tools[0].Description)
	assert.Equal(t, "object", cm.Tools[0].Parameters["type"])
}

func TestParseClaudeRequestUnknownBlockTypeFallsBackToText(t *testing.T) {
	raw := []byte(`{
		"model": "claude-3-opus",
		"messages": [
			{"role": "user", "content": [{"type": "mystery", "text": "whatever"}]}
		]
	}`)

	cm := ParseClaudeRequest(raw)
	block := cm.Messages[0].Content[0]
	assert.Equal(t, BlockText, block.Type)
	assert.Equal(t, "whatever", block.Text)
}
