// Package openai implements the OpenAI chat/completions provider adapter
// (spec §4.3.2): translating Claude Messages requests into OpenAI chat
// completion bodies and OpenAI streaming/non-streaming responses back into
// canonical Claude SSE events / JSON.
package openai

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/schema"
	"github.com/claudeproxy/claudeproxy/internal/sse"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
	"github.com/tidwall/gjson"
)

// Adapter is the OpenAI chat/completions provider.
type Adapter struct{}

// New creates an OpenAI chat/completions adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "openai" }

// Passthrough implements adapter.Adapter.
func (a *Adapter) Passthrough() bool { return false }

// BuildUpstreamRequest implements adapter.Adapter.
func (a *Adapter) BuildUpstreamRequest(cm *canonical.CanonicalMessage, _ []byte, baseURL, apiKey string, channel *config.UpstreamChannel, clientHeaders http.Header) (*adapter.UpstreamRequest, error) {
	body, err := BuildChatCompletionsBody(cm, channel)
	if err != nil {
		return nil, err
	}

	headers := adapter.CopyClientHeaders(clientHeaders)
	headers.Set("Authorization", "Bearer "+apiKey)
	headers.Set("Content-Type", "application/json")

	return &adapter.UpstreamRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(baseURL, "/") + "/v1/chat/completions",
		Headers: headers,
		Body:    body,
	}, nil
}

// mappedModel applies a channel's opaque model mapping, if configured.
func mappedModel(model string, channel *config.UpstreamChannel) string {
	if channel == nil || channel.ModelMap == nil {
		return model
	}
	if mapped, ok := channel.ModelMap[model]; ok {
		return mapped
	}
	return model
}

// BuildChatCompletionsBody translates a canonical message into an OpenAI
// chat/completions request body.
func BuildChatCompletionsBody(cm *canonical.CanonicalMessage, channel *config.UpstreamChannel) ([]byte, error) {
	var messages []map[string]any

	if cm.System != "" {
		messages = append(messages, map[string]any{"role": "system", "content": cm.System})
	}

	for _, m := range cm.Messages {
		messages = append(messages, flattenMessage(m)...)
	}

	body := map[string]any{
		"model":    mappedModel(cm.Model, channel),
		"messages": messages,
		"stream":   cm.Stream,
	}
	if cm.MaxTokens > 0 {
		body["max_tokens"] = cm.MaxTokens
	}
	if cm.Temperature != nil {
		body["temperature"] = *cm.Temperature
	}
	if cm.TopP != nil {
		body["top_p"] = *cm.TopP
	}
	if len(cm.StopSequences) > 0 {
		body["stop"] = cm.StopSequences
	}
	if len(cm.Tools) > 0 {
		body["tools"] = buildTools(cm.Tools)
	}

	return json.Marshal(body)
}

func buildTools(tools []canonical.ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  schema.Clean(t.Parameters),
			},
		})
	}
	return out
}

// flattenMessage converts one canonical message into zero or more OpenAI
// chat messages: a single assistant message may carry both text and
// tool_calls; tool_result blocks become independent role:"tool" messages.
func flattenMessage(m canonical.Message) []map[string]any {
	var out []map[string]any
	var textParts []string
	var toolCalls []map[string]any

	flushText := func() string {
		joined := strings.Join(textParts, "")
		textParts = nil
		return joined
	}

	for _, block := range m.Content {
		switch block.Type {
		case canonical.BlockText:
			textParts = append(textParts, block.Text)
		case canonical.BlockToolUse:
			argsJSON, _ := json.Marshal(block.ToolInput)
			toolCalls = append(toolCalls, map[string]any{
				"id":   block.ToolUseID,
				"type": "function",
				"function": map[string]any{
					"name":      block.ToolName,
					"arguments": string(argsJSON),
				},
			})
		case canonical.BlockToolResult:
			if text := flushText(); text != "" {
				out = append(out, map[string]any{"role": string(m.Role), "content": text})
			}
			out = append(out, map[string]any{
				"role":         "tool",
				"tool_call_id": block.ToolResultID,
				"content":      block.ToolResultContent,
			})
		case canonical.BlockImage:
			textParts = append(textParts, "")
		}
	}

	text := flushText()
	if text != "" || len(toolCalls) > 0 || len(out) == 0 && len(m.Content) == 0 {
		msg := map[string]any{"role": string(m.Role)}
		if text != "" {
			msg["content"] = text
		} else {
			msg["content"] = nil
		}
		if len(toolCalls) > 0 {
			msg["tool_calls"] = toolCalls
		}
		out = append(out, msg)
	}

	return out
}

// TranslateNonStream implements adapter.Adapter.
func (a *Adapter) TranslateNonStream(upstreamBody []byte) ([]byte, error) {
	root := gjson.ParseBytes(upstreamBody)
	response := map[string]any{
		"id":            root.Get("id").String(),
		"type":          "message",
		"role":          "assistant",
		"model":         root.Get("model").String(),
		"content":       []any{},
		"stop_reason":   nil,
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": root.Get("usage.prompt_tokens").Int(), "output_tokens": root.Get("usage.completion_tokens").Int()},
	}

	var contentBlocks []any
	hasToolCall := false

	choice := root.Get("choices.0")
	if message := choice.Get("message"); message.Exists() {
		if content := message.Get("content"); content.Exists() && content.Type == gjson.String && content.String() != "" {
			contentBlocks = append(contentBlocks, map[string]any{"type": "text", "text": content.String()})
		}
		if toolCalls := message.Get("tool_calls"); toolCalls.IsArray() {
			toolCalls.ForEach(func(_, tc gjson.Result) bool {
				hasToolCall = true
				contentBlocks = append(contentBlocks, toolUseBlockFromJSON(tc))
				return true
			})
		}
	}
	response["content"] = contentBlocks

	if fr := choice.Get("finish_reason"); fr.Exists() {
		response["stop_reason"] = mapFinishReason(fr.String())
	} else if hasToolCall {
		response["stop_reason"] = "tool_use"
	}

	return json.Marshal(response)
}

func toolUseBlockFromJSON(tc gjson.Result) map[string]any {
	block := map[string]any{
		"type": "tool_use",
		"id":   tc.Get("id").String(),
		"name": tc.Get("function.name").String(),
	}
	args := tc.Get("function.arguments").String()
	if args != "" {
		var parsed any
		if err := json.Unmarshal([]byte(args), &parsed); err == nil {
			block["input"] = parsed
		} else {
			block["input"] = map[string]any{}
		}
	} else {
		block["input"] = map[string]any{}
	}
	return block
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	case "content_filter":
		return "end_turn"
	default:
		return "end_turn"
	}
}

// streamState is the per-stream accumulator for the OpenAI streaming
// decoder: whether a text block is open and, per tool-call index, the
// assigned block index and the id/name seen so far. Argument fragments are
// forwarded as input_json_delta events as they arrive and are not stored.
type streamState struct {
	textOpen     bool
	toolOrder    []int
	toolAssigned map[int]int // OpenAI tool_calls[].index -> canonical block index
	toolNames    map[int]string
	toolIDs      map[int]string
}

// NewStreamTranslator implements adapter.Adapter.
func (a *Adapter) NewStreamTranslator(_ string) streampump.Decoder {
	st := &streamState{
		toolAssigned: make(map[int]int),
		toolNames:    make(map[int]string),
		toolIDs:      make(map[int]string),
	}

	return func(line string, textIndex, toolIndex int) (streampump.DecodeResult, error) {
		root := gjson.Parse(line)
		var events []sse.Event

		delta := root.Get("choices.0.delta")
		if content := delta.Get("content"); content.Exists() && content.Type == gjson.String && content.String() != "" {
			if !st.textOpen {
				events = append(events, sse.EmitTextBlockStart(textIndex))
				st.textOpen = true
			}
			events = append(events, sse.EmitTextDelta(content.String(), textIndex))
		}

		if toolCalls := delta.Get("tool_calls"); toolCalls.IsArray() {
			toolCalls.ForEach(func(_, tc gjson.Result) bool {
				oaIndex := int(tc.Get("index").Int())
				blockIndex, known := st.toolAssigned[oaIndex]
				if !known {
					if st.textOpen {
						events = append(events, sse.EmitBlockStop(textIndex))
						st.textOpen = false
						textIndex++
					}
					if toolIndex < textIndex {
						toolIndex = textIndex
					}
					blockIndex = toolIndex
					toolIndex++
					textIndex = toolIndex
					st.toolAssigned[oaIndex] = blockIndex
					st.toolOrder = append(st.toolOrder, oaIndex)
				}
				if id := tc.Get("id"); id.Exists() && id.String() != "" {
					st.toolIDs[oaIndex] = id.String()
				}
				name := tc.Get("function.name")
				if name.Exists() && name.String() != "" && st.toolNames[oaIndex] == "" {
					st.toolNames[oaIndex] = name.String()
					events = append(events, sse.EmitToolUseBlockStart(st.toolNames[oaIndex], st.toolIDs[oaIndex], blockIndex))
				}
				if args := tc.Get("function.arguments"); args.Exists() && args.String() != "" {
					events = append(events, sse.EmitInputJSONDelta(args.String(), blockIndex))
				}
				return true
			})
		}

		if fr := root.Get("choices.0.finish_reason"); fr.Exists() && fr.String() != "" {
			if st.textOpen {
				events = append(events, sse.EmitBlockStop(textIndex))
				st.textOpen = false
			}
			for _, oaIndex := range st.toolOrder {
				events = append(events, sse.EmitBlockStop(st.toolAssigned[oaIndex]))
			}
			inputTokens := root.Get("usage.prompt_tokens").Int()
			outputTokens := root.Get("usage.completion_tokens").Int()
			events = append(events, sse.EmitMessageDelta(mapFinishReason(fr.String()), inputTokens, outputTokens))
		}

		if len(events) == 0 {
			return streampump.DecodeResult{}, streampump.ErrSkip
		}
		return streampump.DecodeResult{Events: events, NextTextIndex: textIndex, NextToolIndex: toolIndex}, nil
	}
}
