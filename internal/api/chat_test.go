package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/testutil"
)

func postChat(t *testing.T, f *serverFixture, userID, body string) []testutil.SSEEvent {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	w := f.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	return testutil.ParseSSEEvents(t, w.Body.String())
}

func eventData(t *testing.T, ev *testutil.SSEEvent) map[string]any {
	t.Helper()
	require.NotNil(t, ev)

	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &data))
	return data
}

func TestChatStream_PlainContent(t *testing.T) {
	f := newServerFixture(t)
	f.fake.Stub("hello", testutil.StreamScript{Content: []string{"Hi ", "there!"}})

	events := postChat(t, f, "user-1", `{"message":"hello"}`)

	var content strings.Builder
	for _, ev := range events {
		if ev.Type == "content" {
			content.WriteString(eventData(t, &ev)["content"].(string))
		}
	}
	assert.Equal(t, "Hi there!", content.String())

	complete := testutil.FindEvent(events, "complete")
	data := eventData(t, complete)
	sid, err := uuid.Parse(data["session_id"].(string))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sid)

	// Terminal event is last and unique.
	assert.Equal(t, "complete", events[len(events)-1].Type)
	assert.Nil(t, testutil.FindEvent(events, "error"))
}

func TestChatStream_CapabilityRoundTrip(t *testing.T) {
	f := newServerFixture(t)
	f.fake.Enqueue(testutil.StreamScript{
		ToolCalls: []testutil.ScriptedToolCall{{
			ID:           "call-1",
			Name:         "search_products",
			ArgFragments: []string{`{"query":`, `"pottery"}`},
		}},
	})
	f.fake.Enqueue(testutil.StreamScript{Content: []string{"Found a pottery workshop."}})

	events := postChat(t, f, "user-1", `{"message":"find pottery"}`)

	call := testutil.FindEvent(events, "tool_call")
	callData := eventData(t, call)
	assert.Equal(t, "search_products", callData["capability"])
	assert.Equal(t, map[string]any{"query": "pottery"}, callData["args"])

	result := testutil.FindEvent(events, "tool_result")
	resultData := eventData(t, result)
	assert.Equal(t, "search_products", resultData["capability"])

	assert.NotNil(t, testutil.FindEvent(events, "complete"))
}

func TestChatStream_SessionContinuity(t *testing.T) {
	f := newServerFixture(t)
	f.fake.Stub("", testutil.StreamScript{Content: []string{"response"}})

	first := postChat(t, f, "user-1", `{"message":"first turn"}`)
	sid := eventData(t, testutil.FindEvent(first, "complete"))["session_id"].(string)

	second := postChat(t, f, "user-1", `{"session_id":"`+sid+`","message":"second turn"}`)
	got := eventData(t, testutil.FindEvent(second, "complete"))["session_id"].(string)
	assert.Equal(t, sid, got)

	// The second request carried the first exchange as history.
	reqs := f.fake.Requests()
	require.Len(t, reqs, 2)
	var sawFirst bool
	for _, m := range reqs[1].Messages {
		if m.Role == "user" && m.Content == "first turn" {
			sawFirst = true
		}
	}
	assert.True(t, sawFirst, "second request should include prior history")
}

func TestChatStream_ForeignSessionRejected(t *testing.T) {
	f := newServerFixture(t)
	f.fake.Stub("", testutil.StreamScript{Content: []string{"response"}})

	first := postChat(t, f, "user-1", `{"message":"mine"}`)
	sid := eventData(t, testutil.FindEvent(first, "complete"))["session_id"].(string)

	events := postChat(t, f, "user-2", `{"session_id":"`+sid+`","message":"yours?"}`)

	errEvent := testutil.FindEvent(events, "error")
	data := eventData(t, errEvent)
	assert.Contains(t, data["error"], "session not found")
	assert.Nil(t, testutil.FindEvent(events, "complete"))
}

func TestChatStream_MissingIdentity(t *testing.T) {
	f := newServerFixture(t)

	events := postChat(t, f, "", `{"message":"hello"}`)

	errEvent := testutil.FindEvent(events, "error")
	require.NotNil(t, errEvent)
	assert.Len(t, events, 1, "validation failure should produce only the terminal error")
}

func TestChatStream_EmptyMessage(t *testing.T) {
	f := newServerFixture(t)

	events := postChat(t, f, "user-1", `{"message":"   "}`)

	assert.NotNil(t, testutil.FindEvent(events, "error"))
	assert.Empty(t, f.fake.Requests(), "validation failures must not reach the upstream")
}

func TestChatStream_MalformedBody(t *testing.T) {
	f := newServerFixture(t)

	events := postChat(t, f, "user-1", `{not json`)

	errEvent := testutil.FindEvent(events, "error")
	data := eventData(t, errEvent)
	assert.Equal(t, "invalid request body", data["error"])
}

func TestChatStream_UpstreamFailure(t *testing.T) {
	f := newServerFixture(t)
	f.fake.FailWith(http.StatusUnauthorized)

	events := postChat(t, f, "user-1", `{"message":"hello"}`)

	require.NotNil(t, testutil.FindEvent(events, "error"))
	assert.Nil(t, testutil.FindEvent(events, "complete"))
}
