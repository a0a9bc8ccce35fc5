package openai

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestBuildChatCompletionsBodyFlattensSystemAndToolResult(t *testing.T) {
	cm := &canonical.CanonicalMessage{
		Model:  "claude-3-opus",
		System: "be terse",
		Messages: []canonical.Message{
			{Role: canonical.RoleUser, Content: []canonical.ContentBlock{{Type: canonical.BlockText, Text: "hi"}}},
			{
				Role: canonical.RoleAssistant,
				Content: []canonical.ContentBlock{
					{Type: canonical.BlockText, Text: "checking weather"},
					{Type: canonical.BlockToolUse, ToolUseID: "tu_1", ToolName: "get_weather", ToolInput: map[string]any{"city": "SF"}},
				},
			},
			{
				Role:    canonical.RoleUser,
				Content: []canonical.ContentBlock{{Type: canonical.BlockToolResult, ToolResultID: "tu_1", ToolResultContent: "sunny"}},
			},
		},
	}

	body, err := BuildChatCompletionsBody(cm, nil)
	require.NoError(t, err)

	root := gjson.ParseBytes(body)
	assert.Equal(t, "claude-3-opus", root.Get("model").String())
	assert.Equal(t, "system", root.Get("messages.0.role").String())
	assert.Equal(t, "be terse", root.Get("messages.0.content").String())
	assert.Equal(t, "hi", root.Get("messages.1.content").String())

	assistantMsg := root.Get("messages.2")
	assert.Equal(t, "checking weather", assistantMsg.Get("content").String())
	assert.Equal(t, "get_weather", assistantMsg.Get("tool_calls.0.function.name").String())

	toolMsg := root.Get("messages.3")
	assert.Equal(t, "tool", toolMsg.Get("role").String())
	assert.Equal(t, "tu_1", toolMsg.Get("tool_call_id").String())
	assert.Equal(t, "sunny", toolMsg.Get("content").String())
}

func TestBuildChatCompletionsBodyAppliesModelMap(t *testing.T) {
	cm := &canonical.CanonicalMessage{Model: "claude-3-opus"}
	channel := &config.UpstreamChannel{ModelMap: map[string]string{"claude-3-opus": "gpt-4o"}}

	body, err := BuildChatCompletionsBody(cm, channel)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", gjson.GetBytes(body, "model").String())
}

func TestBuildChatCompletionsBodyCleansToolSchema(t *testing.T) {
	cm := &canonical.CanonicalMessage{
		Model: "claude-3-opus",
		Tools: []canonical.ToolDefinition{
			{
				Name:        "get_weather",
				Description: "fetch weather",
				Parameters: map[string]any{
					"$schema": "http://json-schema.org/draft-07/schema#",
					"type":    "object",
				},
			},
		},
	}

	body, err := BuildChatCompletionsBody(cm, nil)
	require.NoError(t, err)
	root := gjson.ParseBytes(body)
	assert.Equal(t, "function", root.Get("tools.0.type").String())
	assert.Equal(t, "object", root.Get("tools.0.function.parameters.type").String())
	assert.False(t, root.Get("tools.0.function.parameters.$schema").Exists())
}

func TestBuildUpstreamRequestSetsBearerAuthAndStripsClientAuth(t *testing.T) {
	a := New()
	cm := &canonical.CanonicalMessage{Model: "claude-3-opus"}
	clientHeaders := http.Header{"Authorization": []string{"Bearer client-key"}, "X-Custom": []string{"yes"}}

	req, err := a.BuildUpstreamRequest(cm, nil, "https://api.example.com/", "sk-upstream", nil, clientHeaders)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com/v1/chat/completions", req.URL)
	assert.Equal(t, "Bearer sk-upstream", req.Headers.Get("Authorization"))
	assert.Equal(t, "yes", req.Headers.Get("X-Custom"))
}

func TestTranslateNonStreamTextAndToolCalls(t *testing.T) {
	a := New()
	upstream := []byte(`{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"usage": {"prompt_tokens": 12, "completion_tokens": 34},
		"choices": [{
			"finish_reason": "tool_calls",
			"message": {
				"content": "",
				"tool_calls": [{
					"id": "call_1",
					"function": {"name": "get_weather", "arguments": "{\"city\":\"SF\"}"}
				}]
			}
		}]
	}`)

	out, err := a.TranslateNonStream(upstream)
	require.NoError(t, err)

	root := gjson.ParseBytes(out)
	assert.Equal(t, "assistant", root.Get("role").String())
	assert.Equal(t, "tool_use", root.Get("stop_reason").String())
	assert.Equal(t, "get_weather", root.Get("content.0.name").String())
	assert.Equal(t, "SF", root.Get("content.0.input.city").String())
	assert.EqualValues(t, 12, root.Get("usage.input_tokens").Int())
	assert.EqualValues(t, 34, root.Get("usage.output_tokens").Int())
}

func TestTranslateNonStreamPlainText(t *testing.T) {
	a := New()
	upstream := []byte(`{
		"id": "chatcmpl-2",
		"model": "gpt-4o",
		"choices": [{"finish_reason": "stop", "message": {"content": "hello there"}}]
	}`)

	out, err := a.TranslateNonStream(upstream)
	require.NoError(t, err)
	root := gjson.ParseBytes(out)
	assert.Equal(t, "end_turn", root.Get("stop_reason").String())
	assert.Equal(t, "text", root.Get("content.0.type").String())
	assert.Equal(t, "hello there", root.Get("content.0.text").String())
}

func TestStreamTranslatorEmitsTextDeltasAndMessageDelta(t *testing.T) {
	a := New()
	decode := a.NewStreamTranslator("gpt-4o")

	result, err := decode(`{"choices":[{"delta":{"content":"hel"}}]}`, 0, 0)
	require.NoError(t, err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "content_block_start", result.Events[0].Name)
	assert.Equal(t, "content_block_delta", result.Events[1].Name)

	result2, err := decode(`{"choices":[{"delta":{"content":"lo"}}]}`, result.NextTextIndex, result.NextToolIndex)
	require.NoError(t, err)
	require.Len(t, result2.Events, 1)
	assert.Equal(t, "content_block_delta", result2.Events[0].Name)

	final, err := decode(`{"choices":[{"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2}}`, result2.NextTextIndex, result2.NextToolIndex)
	require.NoError(t, err)
	require.Len(t, final.Events, 2)
	assert.Equal(t, "content_block_stop", final.Events[0].Name)
	assert.Equal(t, "message_delta", final.Events[1].Name)
}

func TestStreamTranslatorAccumulatesToolCallArguments(t *testing.T) {
	a := New()
	decode := a.NewStreamTranslator("gpt-4o")

	r1, err := decode(`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"get_weather","arguments":""}}]}}]}`, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, r1.Events)
	assert.Equal(t, "content_block_start", r1.Events[0].Name)

	r2, err := decode(`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`, r1.NextTextIndex, r1.NextToolIndex)
	require.NoError(t, err)
	require.Len(t, r2.Events, 1)
	assert.Equal(t, "content_block_delta", r2.Events[0].Name)

	var deltaPayload map[string]any
	require.NoError(t, json.Unmarshal([]byte(r2.Events[0].Data), &deltaPayload))
}

func TestStreamTranslatorSkipsEmptyDeltaLine(t *testing.T) {
	a := New()
	decode := a.NewStreamTranslator("gpt-4o")

	_, err := decode(`{"choices":[{"delta":{}}]}`, 0, 0)
	assert.ErrorIs(t, err, streampump.ErrSkip)
}
