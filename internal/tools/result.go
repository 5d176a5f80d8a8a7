package tools

import "encoding/json"

// Stable error codes carried by failed Results. The model reads these from
// history; keep them stable across releases.
const (
	CodeMalformedArguments = "malformed_arguments"
	CodeInvalidArguments   = "invalid_arguments"
	CodeUnknownCapability  = "unknown_capability"
	CodeExecutionFailed    = "execution_failed"
)

// Result is the outcome of one capability call. It is always a value; a
// capability that fails reports so here instead of raising.
type Result struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// OKResult builds a success Result.
func OKResult(data any, message string) Result {
	return Result{OK: true, Data: data, Message: message}
}

// FailResult builds a failure Result with a stable code.
func FailResult(code, message string) Result {
	return Result{OK: false, Message: message, Code: code}
}

// Render serializes the Result for injection into conversation history.
// Field order is fixed by the struct, so re-rendering the same Result is
// byte-identical.
func (r Result) Render() string {
	data, err := json.Marshal(r)
	if err != nil {
		// Marshal of this struct only fails for unmarshalable Data values,
		// which executors do not produce. Degrade to the message text.
		return `{"ok":false,"message":"unrenderable result"}`
	}
	return string(data)
}
