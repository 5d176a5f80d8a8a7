// Package llm implements the client side of an OpenAI-compatible streaming
// chat-completion endpoint, including the incremental reconstruction of tool
// calls from fragmented deltas.
package llm

import "encoding/json"

// Message roles as the wire protocol spells them.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons reported by the upstream terminator frame.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
)

// Message is one role/content pair in a chat-completion exchange.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully-reconstructed function invocation requested by the
// model. Arguments is the raw JSON argument buffer; it is only guaranteed to
// be syntactically valid once the stream has terminated.
type ToolCall struct {
	Index    int          `json:"index"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the name and accumulated argument text of a ToolCall.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool is one entry of the request's tool catalog.
type Tool struct {
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function describes a callable function offered to the model. Parameters is
// a JSON Schema object (type "object", properties, required).
type Function struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the outbound chat-completion request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  string    `json:"tool_choice,omitempty"`
	Stream      bool      `json:"stream"`
	Temperature float32   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Completion is the reconstructed result of one streamed response: the full
// assistant text, every tool call with its argument buffer assembled in
// arrival order, and the finish reason from the terminator frame.
type Completion struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
}

// HasToolCalls reports whether the turn should enter dispatch. The transport
// may omit the explicit finish reason under load, so accumulated calls count
// even without it.
func (c *Completion) HasToolCalls() bool {
	return c.FinishReason == FinishToolCalls || len(c.ToolCalls) > 0
}

// Wire frames of the streamed response. Deltas arrive fragmented: a content
// chunk, a partial tool call keyed by index, or a terminator with a finish
// reason.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type streamDelta struct {
	Content   string          `json:"content"`
	ToolCalls []toolCallDelta `json:"tool_calls"`
}

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// errorResponse is the non-streaming error body some endpoints return.
type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
