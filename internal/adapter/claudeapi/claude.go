// Package claudeapi implements the Claude-native provider adapter. Both
// request and response are pass-through: the proxy only re-targets the URL
// and swaps the auth header, per spec §4.3.1.
package claudeapi

import (
	"net/http"
	"strings"

	"github.com/claudeproxy/claudeproxy/internal/adapter"
	"github.com/claudeproxy/claudeproxy/internal/canonical"
	"github.com/claudeproxy/claudeproxy/internal/config"
	"github.com/claudeproxy/claudeproxy/internal/streampump"
	"github.com/tidwall/gjson"
)

// Adapter is the Claude-native provider.
type Adapter struct{}

// New creates a Claude adapter.
func New() *Adapter { return &Adapter{} }

var _ adapter.Adapter = (*Adapter)(nil)

// Name implements adapter.Adapter.
func (a *Adapter) Name() string { return "claude" }

// Passthrough implements adapter.Adapter: the upstream wire format already
// is the canonical Claude SSE format.
func (a *Adapter) Passthrough() bool { return true }

// BuildUpstreamRequest implements adapter.Adapter.
func (a *Adapter) BuildUpstreamRequest(_ *canonical.CanonicalMessage, rawRequestJSON []byte, baseURL, apiKey string, _ *config.UpstreamChannel, clientHeaders http.Header) (*adapter.UpstreamRequest, error) {
	headers := adapter.CopyClientHeaders(clientHeaders)
	headers.Set("x-api-key", apiKey)
	headers.Set("anthropic-version", "2023-06-01")
	headers.Set("Content-Type", "application/json")

	return &adapter.UpstreamRequest{
		Method:  http.MethodPost,
		URL:     strings.TrimRight(baseURL, "/") + "/v1/messages",
		Headers: headers,
		Body:    rawRequestJSON,
	}, nil
}

// TranslateNonStream implements adapter.Adapter: pass-through.
func (a *Adapter) TranslateNonStream(upstreamBody []byte) ([]byte, error) {
	return upstreamBody, nil
}

// observerState tracks what the projection decoder has seen, purely for
// logging/metrics; none of this feeds back into the forwarded bytes.
type observerState struct {
	toolNames map[int]string
	toolIDs   map[int]string
	toolArgs  map[int]string
}

// NewStreamTranslator implements adapter.Adapter. The decoder records
// tool-use ids, names and argument fragments and emits no events. The
// passthrough streaming path in internal/api forwards upstream bytes
// directly and does not call this decoder.
func (a *Adapter) NewStreamTranslator(_ string) streampump.Decoder {
	state := &observerState{
		toolNames: make(map[int]string),
		toolIDs:   make(map[int]string),
		toolArgs:  make(map[int]string),
	}
	return func(line string, textIndex, toolIndex int) (streampump.DecodeResult, error) {
		root := gjson.Parse(line)
		switch root.Get("type").String() {
		case "content_block_start":
			block := root.Get("content_block")
			if block.Get("type").String() == "tool_use" {
				idx := int(root.Get("index").Int())
				state.toolIDs[idx] = block.Get("id").String()
				state.toolNames[idx] = block.Get("name").String()
			}
		case "content_block_delta":
			delta := root.Get("delta")
			idx := int(root.Get("index").Int())
			if delta.Get("type").String() == "input_json_delta" {
				state.toolArgs[idx] += delta.Get("partial_json").String()
			}
		}
		return streampump.DecodeResult{Events: nil, NextTextIndex: textIndex, NextToolIndex: toolIndex}, nil
	}
}
