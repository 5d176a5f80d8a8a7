package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// ScriptedToolCall is one capability call the fake upstream emits, sliced
// into argument fragments the way real endpoints fragment them.
type ScriptedToolCall struct {
	Index        int
	ID           string
	Name         string
	ArgFragments []string
}

// StreamScript describes one streamed response: content fragments, then
// tool-call fragments, then a finish frame and the [DONE] sentinel.
// RawFrames, when set, is emitted verbatim instead (for malformed-frame and
// missing-sentinel scenarios); each entry is one line of the stream.
type StreamScript struct {
	Content      []string
	ToolCalls    []ScriptedToolCall
	FinishReason string // defaults to "stop", or "tool_calls" when ToolCalls is set
	RawFrames    []string
}

// RecordedRequest is one chat-completion request the fake received.
type RecordedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

// LastUserContent returns the content of the most recent user message.
func (r RecordedRequest) LastUserContent() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

type fakeRule struct {
	pattern string
	script  StreamScript
}

// FakeLLM is a scriptable chat-completion upstream speaking the streaming
// wire format. Responses come from pattern rules matched against the last
// user message (first match wins), then from the enqueued script queue,
// then from the fallback.
//
// Safe for concurrent use.
type FakeLLM struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	rules    []fakeRule
	queue    []StreamScript
	fallback StreamScript
	status   int // non-zero: reply with this status instead of a stream
	requests []RecordedRequest
}

// NewFakeLLM starts the fake upstream. It shuts down with the test.
func NewFakeLLM(t *testing.T) *FakeLLM {
	t.Helper()
	f := &FakeLLM{
		t:        t,
		fallback: StreamScript{Content: []string{"Okay."}},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/completions", f.handle)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL clients should use.
func (f *FakeLLM) URL() string {
	return f.server.URL
}

// Stub registers a pattern rule: requests whose last user message contains
// pattern stream the given script.
func (f *FakeLLM) Stub(pattern string, script StreamScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{pattern: pattern, script: script})
}

// Enqueue appends a script served to the next otherwise-unmatched request.
func (f *FakeLLM) Enqueue(script StreamScript) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, script)
}

// FailWith makes every subsequent request answer with an error status.
func (f *FakeLLM) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// Requests returns a copy of all recorded requests.
func (f *FakeLLM) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]RecordedRequest, len(f.requests))
	copy(cp, f.requests)
	return cp
}

func (f *FakeLLM) handle(w http.ResponseWriter, r *http.Request) {
	var req RecordedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	script := f.fallback
	switch {
	case f.status != 0:
		status := f.status
		f.mu.Unlock()
		http.Error(w, `{"error":{"message":"scripted failure"}}`, status)
		return
	default:
		matched := false
		last := req.LastUserContent()
		for _, rule := range f.rules {
			if strings.Contains(last, rule.pattern) {
				script, matched = rule.script, true
				break
			}
		}
		if !matched && len(f.queue) > 0 {
			script = f.queue[0]
			f.queue = f.queue[1:]
		}
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	emit := func(line string) {
		fmt.Fprintf(w, "%s\n\n", line)
		if flusher != nil {
			flusher.Flush()
		}
	}

	if len(script.RawFrames) > 0 {
		for _, frame := range script.RawFrames {
			emit(frame)
		}
		return
	}

	for _, fragment := range script.Content {
		emit("data: " + contentFrame(fragment))
	}
	for _, call := range script.ToolCalls {
		for i, fragment := range call.ArgFragments {
			first := i == 0
			emit("data: " + toolCallFrame(call, fragment, first))
		}
	}

	reason := script.FinishReason
	if reason == "" {
		reason = "stop"
		if len(script.ToolCalls) > 0 {
			reason = "tool_calls"
		}
	}
	emit("data: " + finishFrame(reason))
	emit("data: [DONE]")
}

func contentFrame(text string) string {
	frame := map[string]any{
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": text}},
		},
	}
	return mustJSON(frame)
}

func toolCallFrame(call ScriptedToolCall, argFragment string, first bool) string {
	tc := map[string]any{
		"index":    call.Index,
		"function": map[string]any{"arguments": argFragment},
	}
	if first {
		tc["id"] = call.ID
		tc["type"] = "function"
		tc["function"] = map[string]any{"name": call.Name, "arguments": argFragment}
	}
	frame := map[string]any{
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"tool_calls": []map[string]any{tc}}},
		},
	}
	return mustJSON(frame)
}

func finishFrame(reason string) string {
	frame := map[string]any{
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{}, "finish_reason": reason},
		},
	}
	return mustJSON(frame)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
