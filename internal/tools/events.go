package tools

// Emitter receives caller-visible notifications around capability execution.
// The API layer binds one to the turn's SSE stream; the dispatcher calls it.
//
// Result notifications for suppressed capabilities (internal reasoning
// state, configured by name) are never delivered.
type Emitter interface {
	// OnToolCall signals that a capability is about to execute with the
	// given parsed arguments.
	OnToolCall(name string, args map[string]any)

	// OnToolResult delivers the capability's result.
	OnToolResult(name string, result Result)
}

// NopEmitter discards all notifications. Used when the output channel is
// gone (caller disconnected) and in tests.
type NopEmitter struct{}

func (NopEmitter) OnToolCall(string, map[string]any) {}

func (NopEmitter) OnToolResult(string, Result) {}
