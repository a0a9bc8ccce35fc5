package canonical

import (
	"github.com/tidwall/gjson"
)

// ParseClaudeRequest builds a CanonicalMessage from a raw Claude Messages API
// request body. It is the single place inbound JSON is walked with gjson so
// every adapter starts from the same normalized shape.
func ParseClaudeRequest(rawJSON []byte) *CanonicalMessage {
	root := gjson.ParseBytes(rawJSON)

	cm := &CanonicalMessage{
		Model:     root.Get("model").String(),
		Stream:    root.Get("stream").Bool(),
		MaxTokens: int(root.Get("max_tokens").Int()),
	}

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		cm.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		cm.TopP = &f
	}
	if v := root.Get("stop_sequences"); v.IsArray() {
		for _, s := range v.Array() {
			cm.StopSequences = append(cm.StopSequences, s.String())
		}
	}

	if sys := root.Get("system"); sys.Exists() {
		if sys.Type == gjson.String {
			cm.System = sys.String()
		} else if sys.IsArray() {
			for _, block := range sys.Array() {
				if block.Get("type").String() == "text" {
					cm.System += block.Get("text").String()
				}
			}
		}
	}

	if msgs := root.Get("messages"); msgs.IsArray() {
		for _, m := range msgs.Array() {
			cm.Messages = append(cm.Messages, parseClaudeMessage(m))
		}
	}

	if tools := root.Get("tools"); tools.IsArray() {
		for _, t := range tools.Array() {
			td := ToolDefinition{
				Name:        t.Get("name").String(),
				Description: t.Get("description").String(),
			}
			if params := t.Get("input_schema"); params.Exists() {
				if m, ok := params.Value().(map[string]any); ok {
					td.Parameters = m
				}
			}
			cm.Tools = append(cm.Tools, td)
		}
	}

	return cm
}

func parseClaudeMessage(m gjson.Result) Message {
	msg := Message{Role: NormalizeRole(m.Get("role").String())}

	content := m.Get("content")
	if content.Type == gjson.String {
		msg.Content = append(msg.Content, ContentBlock{Type: BlockText, Text: content.String()})
		return msg
	}

	if content.IsArray() {
		for _, block := range content.Array() {
			msg.Content = append(msg.Content, parseClaudeBlock(block))
		}
	}
	return msg
}

func parseClaudeBlock(block gjson.Result) ContentBlock {
	switch block.Get("type").String() {
	case "tool_use":
		cb := ContentBlock{
			Type:      BlockToolUse,
			ToolUseID: block.Get("id").String(),
			ToolName:  block.Get("name").String(),
		}
		if input := block.Get("input"); input.Exists() {
			if m, ok := input.Value().(map[string]any); ok {
				cb.ToolInput = m
			}
		}
		return cb
	case "tool_result":
		cb := ContentBlock{
			Type:            BlockToolResult,
			ToolResultID:    block.Get("tool_use_id").String(),
			ToolResultError: block.Get("is_error").Bool(),
		}
		result := block.Get("content")
		if result.Type == gjson.String {
			cb.ToolResultContent = result.String()
		} else if result.IsArray() {
			for _, part := range result.Array() {
				if part.Get("type").String() == "text" {
					cb.ToolResultContent += part.Get("text").String()
				}
			}
		}
		return cb
	case "image":
		return ContentBlock{
			Type:           BlockImage,
			ImageMediaType: block.Get("source.media_type").String(),
			ImageData:      block.Get("source.data").String(),
		}
	default:
		return ContentBlock{Type: BlockText, Text: block.Get("text").String()}
	}
}
