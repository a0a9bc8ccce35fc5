// Package canonical defines the provider-neutral intermediate representation
// that every adapter pair translates Claude Messages requests through.
package canonical

// Role is a normalized participant role in a canonical message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// NormalizeRole maps an arbitrary upstream/downstream role string onto the
// closed Role set. The mapping is total and idempotent: normalizing an
// already-normalized role returns it unchanged.
func NormalizeRole(raw string) Role {
	switch raw {
	case "system":
		return RoleSystem
	case "model", "assistant":
		return RoleAssistant
	case "human", "user":
		return RoleUser
	case "tool":
		return RoleTool
	default:
		return RoleUser
	}
}

// BlockType enumerates the canonical content block kinds.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is one block of a message's content array.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ToolUseID string         `json:"id,omitempty"`
	ToolName  string         `json:"name,omitempty"`
	ToolInput map[string]any `json:"input,omitempty"`

	// BlockToolResult
	ToolResultID      string `json:"tool_use_id,omitempty"`
	ToolResultContent string `json:"content,omitempty"`
	ToolResultError   bool   `json:"is_error,omitempty"`

	// BlockImage
	ImageMediaType string `json:"media_type,omitempty"`
	ImageData      string `json:"data,omitempty"`
}

// Message is a single turn in a canonical conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolDefinition is a declared function schema, opaque parameters preserved
// in JSON-Schema shape.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// CanonicalMessage carries sampling and transport parameters alongside the turns.
type CanonicalMessage struct {
	Model         string           `json:"model"`
	Messages      []Message        `json:"messages"`
	System        string           `json:"system,omitempty"`
	Tools         []ToolDefinition `json:"tools,omitempty"`
	Stream        bool             `json:"stream"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	TopP          *float64         `json:"top_p,omitempty"`
	StopSequences []string         `json:"stop_sequences,omitempty"`
}
