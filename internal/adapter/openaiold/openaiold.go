// Package openaiold implements the legacy OpenAI text-completions provider
// adapter (spec §4.3.3): every request is sent as a single flattened
// "prompt" string to /v1/completions, and tool_calls are never produced.
// The channel's legacy-completions flag is not read; there is no chat
// "messages" form in this adapter.
package openaiold

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/sse"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
	"github.com/tidwall/gjson"
)

// Adapter is the legacy OpenAI text-completions provider.
type Adapter struct{}

// New creates a legacy OpenAI adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "openaiold" }

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
		"model":  model,
		"prompt": flattenToPrompt(cm),
		"stream": cm.Stream,
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

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	headers := adapter.CopyClientHeaders(clientHeaders)
	headers.Set("Authorization", "Bearer "+apiKey)
	headers.Set("Content-Type", "application/json")

	return &adapter.UpstreamRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(baseURL, "/") + "/v1/completions",
		Headers: headers,
		Body:    encoded,
	}, nil
}

// flattenToPrompt renders the canonical conversation as a single text
// transcript: role-prefixed turns separated by blank lines, finished by an
// "Assistant:" cue so the completions endpoint continues in that voice.
// Tool-call and tool-result blocks are rendered as their text equivalent
// since this wire shape has no structured place for them.
func flattenToPrompt(cm *canonical.CanonicalMessage) string {
	var b strings.Builder
	if cm.System != "" {
		b.WriteString("System: ")
		b.WriteString(cm.System)
		b.WriteString("\n\n")
	}
	for _, m := range cm.Messages {
		label := roleLabel(m.Role)
		var text strings.Builder
		for _, block := range m.Content {
			switch block.Type {
			case canonical.BlockText:
				text.WriteString(block.Text)
			case canonical.BlockToolUse:
				text.WriteString("[tool call: " + block.ToolName + "]")
			case canonical.BlockToolResult:
				text.WriteString("[tool result: " + block.ToolResultContent + "]")
			}
		}
		if text.Len() == 0 {
			continue
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(text.String())
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func roleLabel(r canonical.Role) string {
	switch r {
	case canonical.RoleAssistant:
		return "Assistant"
	case canonical.RoleSystem:
		return "System"
	case canonical.RoleTool:
		return "Tool"
	default:
		return "Human"
	}
}

// TranslateNonStream implements adapter.Adapter.
func (a *Adapter) TranslateNonStream(upstreamBody []byte) ([]byte, error) {
	root := gjson.ParseBytes(upstreamBody)
	text := root.Get("choices.0.text").String()
	response := map[string]any{
		"id":            root.Get("id").String(),
		"type":          "message",
		"role":          "assistant",
		"model":         root.Get("model").String(),
		"content":       []any{map[string]any{"type": "text", "text": text}},
		"stop_reason":   mapFinishReason(root.Get("choices.0.finish_reason").String()),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  root.Get("usage.prompt_tokens").Int(),
			"output_tokens": root.Get("usage.completion_tokens").Int(),
		},
	}
	return json.Marshal(response)
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return "end_turn"
	}
}

// NewStreamTranslator implements adapter.Adapter. The legacy completions
// stream has no tool_calls and no role-only delta: every non-empty
// choices[0].text chunk is a text delta.
func (a *Adapter) NewStreamTranslator(_ string) streampump.Decoder {
	textOpen := false

	return func(line string, textIndex, toolIndex int) (streampump.DecodeResult, error) {
		root := gjson.Parse(line)
		var events []sse.Event

		if text := root.Get("choices.0.text"); text.Exists() && text.String() != "" {
			if !textOpen {
				events = append(events, sse.EmitTextBlockStart(textIndex))
				textOpen = true
			}
			events = append(events, sse.EmitTextDelta(text.String(), textIndex))
		}

		if fr := root.Get("choices.0.finish_reason"); fr.Exists() && fr.String() != "" {
			if textOpen {
				events = append(events, sse.EmitBlockStop(textIndex))
				textOpen = false
			}
			events = append(events, sse.EmitMessageDelta(mapFinishReason(fr.String()), 0, 0))
		}

		if len(events) == 0 {
			return streampump.DecodeResult{}, streampump.ErrSkip
		}
		return streampump.DecodeResult{Events: events, NextTextIndex: textIndex, NextToolIndex: toolIndex}, nil
	}
}
