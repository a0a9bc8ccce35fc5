// Package gemini implements the Google Gemini provider adapter (spec
// §4.3.4): the model and API key live in the URL rather than the body, the
// streaming endpoint is selected by a query suffix, and content is
// structured as contents[].parts[] rather than an OpenAI-style messages
// array.
package gemini

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

// Adapter is the Gemini provider.
type Adapter struct{}

// New creates a Gemini adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "gemini" }

// Passthrough implements adapter.Adapter.
func (a *Adapter) Passthrough() bool { return false }

// BuildUpstreamRequest implements adapter.Adapter.
func (a *Adapter) BuildUpstreamRequest(cm *canonical.CanonicalMessage, _ []byte, baseURL, apiKey string, channel *config.UpstreamChannel, clientHeaders http.Header) (*adapter.UpstreamRequest, error) {
	model := cm.Model
	if channel != nil && channel.ModelMap != nil {
		if mapped, ok := channel.ModelMap[model]; ok {
			model = mapped
		}
	}

	body := map[string]any{
		"contents": buildContents(cm.Messages),
		"generationConfig": buildGenerationConfig(cm),
	}
	if cm.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": cm.System}},
		}
	}
	if len(cm.Tools) > 0 {
		body["tools"] = []any{map[string]any{"functionDeclarations": buildFunctionDeclarations(cm.Tools)}}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	action := "generateContent"
	if cm.Stream {
		action = "streamGenerateContent"
	}
	url := strings.TrimRight(baseURL, "/") + "/v1beta/models/" + model + ":" + action
	if cm.Stream {
		url += "?alt=sse"
	}

	headers := adapter.CopyClientHeaders(clientHeaders)
	headers.Set("x-goog-api-key", apiKey)
	headers.Set("Content-Type", "application/json")

	return &adapter.UpstreamRequest{
		Method:  http.MethodPost,
		URL:     url,
		Headers: headers,
		Body:    encoded,
	}, nil
}

func buildGenerationConfig(cm *canonical.CanonicalMessage) map[string]any {
	cfg := map[string]any{}
	if cm.MaxTokens > 0 {
		cfg["maxOutputTokens"] = cm.MaxTokens
	}
	if cm.Temperature != nil {
		cfg["temperature"] = *cm.Temperature
	}
	if cm.TopP != nil {
		cfg["topP"] = *cm.TopP
	}
	if len(cm.StopSequences) > 0 {
		cfg["stopSequences"] = cm.StopSequences
	}
	return cfg
}

func buildFunctionDeclarations(tools []canonical.ToolDefinition) []any {
	out := make([]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  schema.Clean(t.Parameters),
		})
	}
	return out
}

func geminiRole(r canonical.Role) string {
	if r == canonical.RoleAssistant {
		return "model"
	}
	return "user"
}

func buildContents(messages []canonical.Message) []any {
	out := make([]any, 0, len(messages))
	for _, m := range messages {
		var parts []any
		for _, block := range m.Content {
			switch block.Type {
			case canonical.BlockText:
				if block.Text != "" {
					parts = append(parts, map[string]any{"text": block.Text})
				}
			case canonical.BlockToolUse:
				parts = append(parts, map[string]any{
					"functionCall": map[string]any{
						"name": block.ToolName,
						"args": block.ToolInput,
					},
				})
			case canonical.BlockToolResult:
				parts = append(parts, map[string]any{
					"functionResponse": map[string]any{
						"name": block.ToolResultID,
						"response": map[string]any{
							"content": block.ToolResultContent,
						},
					},
				})
			case canonical.BlockImage:
				parts = append(parts, map[string]any{
					"inlineData": map[string]any{
						"mimeType": block.ImageMediaType,
						"data":     block.ImageData,
					},
				})
			}
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, map[string]any{
			"role":  geminiRole(m.Role),
			"parts": parts,
		})
	}
	return out
}

// TranslateNonStream implements adapter.Adapter.
func (a *Adapter) TranslateNonStream(upstreamBody []byte) ([]byte, error) {
	root := gjson.ParseBytes(upstreamBody)
	candidate := root.Get("candidates.0")

	var contentBlocks []any
	stopReason := "end_turn"
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if text := part.Get("text"); text.Exists() {
			contentBlocks = append(contentBlocks, map[string]any{"type": "text", "text": text.String()})
			return true
		}
		if fc := part.Get("functionCall"); fc.Exists() {
			var args any
			if argsJSON := fc.Get("args"); argsJSON.Exists() {
				args = argsJSON.Value()
			} else {
				args = map[string]any{}
			}
			contentBlocks = append(contentBlocks, map[string]any{
				"type":  "tool_use",
				"id":    "toolu_" + fc.Get("name").String(),
				"name":  fc.Get("name").String(),
				"input": args,
			})
			stopReason = "tool_use"
		}
		return true
	})

	if fr := candidate.Get("finishReason").String(); fr != "" && stopReason != "tool_use" {
		stopReason = mapFinishReason(fr)
	}

	response := map[string]any{
		"id":            "msg_" + root.Get("responseId").String(),
		"type":          "message",
		"role":          "assistant",
		"model":         root.Get("modelVersion").String(),
		"content":       contentBlocks,
		"stop_reason":   stopReason,
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  root.Get("usageMetadata.promptTokenCount").Int(),
			"output_tokens": root.Get("usageMetadata.candidatesTokenCount").Int(),
		},
	}
	return json.Marshal(response)
}

func mapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// NewStreamTranslator implements adapter.Adapter. Gemini streams complete
// candidates.0.content.parts per chunk rather than incremental deltas for
// function calls, so each functionCall part is emitted as a full
// start/delta/stop triple the moment it appears.
func (a *Adapter) NewStreamTranslator(_ string) streampump.Decoder {
	textOpen := false

	return func(line string, textIndex, toolIndex int) (streampump.DecodeResult, error) {
		root := gjson.Parse(line)
		var events []sse.Event

		root.Get("candidates.0.content.parts").ForEach(func(_, part gjson.Result) bool {
			if text := part.Get("text"); text.Exists() && text.String() != "" {
				if !textOpen {
					events = append(events, sse.EmitTextBlockStart(textIndex))
					textOpen = true
				}
				events = append(events, sse.EmitTextDelta(text.String(), textIndex))
				return true
			}
			if fc := part.Get("functionCall"); fc.Exists() {
				if textOpen {
					events = append(events, sse.EmitBlockStop(textIndex))
					textOpen = false
					textIndex++
				}
				if toolIndex < textIndex {
					toolIndex = textIndex
				}
				blockIndex := toolIndex
				toolIndex++
				textIndex = toolIndex
				argsJSON := "{}"
				if args := fc.Get("args"); args.Exists() {
					argsJSON = args.Raw
				}
				events = append(events, sse.EmitToolUseBlock(fc.Get("name").String(), argsJSON, "", blockIndex)...)
			}
			return true
		})

		if fr := root.Get("candidates.0.finishReason"); fr.Exists() && fr.String() != "" {
			if textOpen {
				events = append(events, sse.EmitBlockStop(textIndex))
				textOpen = false
			}
			inputTokens := root.Get("usageMetadata.promptTokenCount").Int()
			outputTokens := root.Get("usageMetadata.candidatesTokenCount").Int()
			events = append(events, sse.EmitMessageDelta(mapFinishReason(fr.String()), inputTokens, outputTokens))
		}

		if len(events) == 0 {
			return streampump.DecodeResult{}, streampump.ErrSkip
		}
		return streampump.DecodeResult{Events: events, NextTextIndex: textIndex, NextToolIndex: toolIndex}, nil
	}
}
