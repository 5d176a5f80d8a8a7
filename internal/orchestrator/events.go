package orchestrator

import (
	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/tools"
)

// EventType tags one outbound event of a turn.
type EventType string

// Outbound event types, in the order a turn can produce them. Exactly one
// of EventError or EventComplete terminates a turn.
const (
	EventContent    EventType = "content"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventError      EventType = "error"
	EventComplete   EventType = "complete"
)

// Event is one entry of a turn's ordered outbound channel.
type Event struct {
	Type EventType `json:"type"`

	// Content carries the text fragment of a content event.
	Content string `json:"content,omitempty"`

	// Capability and Args describe a tool_call event; Result carries the
	// tool_result payload.
	Capability string         `json:"capability,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	Result     *tools.Result  `json:"result,omitempty"`

	// Error is the single caller-visible message of an error event.
	Error string `json:"error,omitempty"`

	// SessionID accompanies the complete event: reconstruction may have
	// moved the conversation to a derived identifier.
	SessionID uuid.UUID `json:"session_id,omitempty"`
}
