// Package sse produces the canonical Claude server-sent-event sequence that
// every provider adapter's streaming output is normalized into.
package sse

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event is one emitted SSE frame, ready to be written to the client as
// "event: <Name>\ndata: <Data>\n\n".
type Event struct {
	Name string
	Data string
}

// Frame renders the event in wire form.
func (e Event) Frame() string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, e.Data)
}

// NewMessageID mints an opaque 10+-char random message id, unique per call.
func NewMessageID() string {
	return "msg_" + uuid.NewString()
}

// Emitter produces well-formed Claude SSE sequences. It tracks nothing about
// block indices itself beyond what callers pass in; per-stream ordering
// (monotonic indices, start-before-delta-before-stop) is the caller's
// responsibility, matching the Stream Pump's decode-callback contract.
type Emitter struct {
	MessageID string
	Model     string
}

// NewEmitter creates an emitter with a fresh message id.
func NewEmitter(model string) *Emitter {
	return &Emitter{MessageID: NewMessageID(), Model: model}
}

// EmitMessageStart returns the single message_start frame that must open
// every well-formed stream.
func (e *Emitter) EmitMessageStart() Event {
	data, _ := json.Marshal(map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id":            e.MessageID,
			"type":          "message",
			"role":          "assistant",
			"model":         e.Model,
			"content":       []any{},
			"stop_reason":   nil,
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
		},
	})
	return Event{Name: "message_start", Data: string(data)}
}

// EmitTextBlockStart opens a text content block at index.
func EmitTextBlockStart(index int) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_start",
		"index": index,
		"content_block": map[string]any{
			"type": "text",
			"text": "",
		},
	})
	return Event{Name: "content_block_start", Data: string(data)}
}

// EmitTextDelta emits a text_delta frame carrying the given fragment.
func EmitTextDelta(text string, index int) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{
			"type": "text_delta",
			"text": text,
		},
	})
	return Event{Name: "content_block_delta", Data: string(data)}
}

// EmitBlockStop closes the content block at index.
func EmitBlockStop(index int) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_stop",
		"index": index,
	})
	return Event{Name: "content_block_stop", Data: string(data)}
}

// EmitTextBlock emits the three frames (start, delta, stop) for a complete,
// non-streamed text block.
func EmitTextBlock(text string, index int) []Event {
	return []Event{EmitTextBlockStart(index), EmitTextDelta(text, index), EmitBlockStop(index)}
}

// EmitToolUseBlockStart opens a tool_use content block. id is supplied when
// the upstream provides one; otherwise callers should generate one before
// calling this (e.g. "toolu_" + uuid).
func EmitToolUseBlockStart(name, id string, index int) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_start",
		"index": index,
		"content_block": map[string]any{
			"type":  "tool_use",
			"id":    id,
			"name":  name,
			"input": map[string]any{},
		},
	})
	return Event{Name: "content_block_start", Data: string(data)}
}

// EmitInputJSONDelta emits a partial tool-call-argument fragment.
func EmitInputJSONDelta(partialJSON string, index int) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "content_block_delta",
		"index": index,
		"delta": map[string]any{
			"type":         "input_json_delta",
			"partial_json": partialJSON,
		},
	})
	return Event{Name: "content_block_delta", Data: string(data)}
}

// EmitToolUseBlock emits a complete tool_use block (start, one full args
// delta, stop) for a non-streamed tool call.
func EmitToolUseBlock(name, argsJSON, id string, index int) []Event {
	if id == "" {
		id = "toolu_" + uuid.NewString()
	}
	return []Event{
		EmitToolUseBlockStart(name, id, index),
		EmitInputJSONDelta(argsJSON, index),
		EmitBlockStop(index),
	}
}

// EmitMessageDelta emits the stop_reason/usage update that precedes
// message_stop.
func EmitMessageDelta(stopReason string, inputTokens, outputTokens int64) Event {
	data, _ := json.Marshal(map[string]any{
		"type": "message_delta",
		"delta": map[string]any{
			"stop_reason":   stopReason,
			"stop_sequence": nil,
		},
		"usage": map[string]any{
			"input_tokens":  inputTokens,
			"output_tokens": outputTokens,
		},
	})
	return Event{Name: "message_delta", Data: string(data)}
}

// EmitMessageStop returns the single message_stop frame that must close
// every well-formed stream.
func EmitMessageStop() Event {
	return Event{Name: "message_stop", Data: `{"type":"message_stop"}`}
}

// EmitPing returns a keep-alive ping frame.
func EmitPing() Event {
	return Event{Name: "ping", Data: `{"type":"ping"}`}
}

// EmitError returns an error frame carrying a message.
func EmitError(message string) Event {
	data, _ := json.Marshal(map[string]any{
		"type":  "error",
		"error": map[string]any{"type": "api_error", "message": message},
	})
	return Event{Name: "error", Data: string(data)}
}
