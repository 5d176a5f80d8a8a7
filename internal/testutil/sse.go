// Package testutil provides shared test infrastructure: an SSE stream
// parser, a scriptable fake chat-completion upstream, and a PostgreSQL
// container helper.
package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent is one parsed server-sent event.
type SSEEvent struct {
	Type string
	Data string // multi-line data joined with \n
}

// ParseSSEEvents parses an SSE response body into events.
//
// Follows the W3C framing rules: an empty line terminates an event,
// multiple data lines join with newline, data before an event line implies
// the default "message" type, and ":" comment lines are ignored.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events    []SSEEvent
		current   SSEEvent
		dataLines []string
		lineNum   int
	)

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			if current.Type != "" && len(dataLines) > 0 {
				t.Fatalf("sse line %d: new event before previous terminated: %q", lineNum, line)
			}
			current.Type = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if current.Type != "" {
				current.Data = strings.Join(dataLines, "\n")
				events = append(events, current)
				current = SSEEvent{}
				dataLines = nil
			}

		default:
			if !strings.HasPrefix(line, ":") {
				t.Fatalf("sse line %d: unexpected line: %q", lineNum, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("sse scan: %v", err)
	}
	if current.Type != "" {
		t.Fatalf("sse stream ended mid-event %q (missing blank line)", current.Type)
	}

	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns every event of the given type in order.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
