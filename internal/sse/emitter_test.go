package sse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventFrameShape(t *testing.T) {
	ev := Event{Name: "ping", Data: `{"type":"ping"}`}
	assert.Equal(t, "event: ping\ndata: {\"type\":\"ping\"}\n\n", ev.Frame())
}

func TestNewMessageIDIsUniqueAndPrefixed(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "msg_")
}

func TestEmitMessageStartShape(t *testing.T) {
	e := NewEmitter("claude-3-opus")
	ev := e.EmitMessageStart()
	assert.Equal(t, "message_start", ev.Name)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &payload))
	assert.Equal(t, "message_start", payload["type"])

	msg := payload["message"].(map[string]any)
	assert.Equal(t, e.MessageID, msg["id"])
	assert.Equal(t, "claude-3-opus", msg["model"])
	assert.Nil(t, msg["stop_reason"])
}

func TestEmitTextBlockProducesStartDeltaStop(t *testing.T) {
	events := EmitTextBlock("hello", 0)
	require.Len(t, events, 3)
	assert.Equal(t, "content_block_start", events[0].Name)
	assert.Equal(t, "content_block_delta", events[1].Name)
	assert.Equal(t, "content_block_stop", events[2].Name)
	assert.Contains(t, events[1].Data, "hello")
}

func TestEmitToolUseBlockGeneratesIDWhenMissing(t *testing.T) {
	events := EmitToolUseBlock("get_weather", `{"city":"SF"}`, "", 1)
	require.Len(t, events, 3)

	var start map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &start))
	block := start["content_block"].(map[string]any)
	assert.Equal(t, "get_weather", block["name"])
	assert.Contains(t, block["id"], "toolu_")
}

func TestEmitToolUseBlockPreservesGivenID(t *testing.T) {
	events := EmitToolUseBlock("get_weather", `{}`, "toolu_fixed", 0)
	var start map[string]any
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &start))
	block := start["content_block"].(map[string]any)
	assert.Equal(t, "toolu_fixed", block["id"])
}

func TestEmitMessageStopAndPingAreStatic(t *testing.T) {
	assert.Equal(t, "message_stop", EmitMessageStop().Name)
	assert.Equal(t, "ping", EmitPing().Name)
}

func TestEmitErrorCarriesMessage(t *testing.T) {
	ev := EmitError("boom")
	assert.Equal(t, "error", ev.Name)
	assert.Contains(t, ev.Data, "boom")
}

func TestEmitMessageDeltaCarriesUsage(t *testing.T) {
	ev := EmitMessageDelta("end_turn", 10, 20)
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &payload))
	delta := payload["delta"].(map[string]any)
	assert.Equal(t, "end_turn", delta["stop_reason"])
	usage := payload["usage"].(map[string]any)
	assert.Equal(t, float64(10), usage["input_tokens"])
	assert.Equal(t, float64(20), usage["output_tokens"])
}
