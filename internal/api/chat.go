package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/orchestrator"
)

const maxChatBodyBytes = 1 << 20 // 1MB

// chatInput is the request body for POST /api/v1/chat/stream.
// SessionID is empty on the first turn; the terminal complete event carries
// the session ID the client should use from then on.
type chatInput struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// chatHandler streams conversation turns as Server-Sent Events.
type chatHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// stream handles SSE streaming chat requests. Each orchestrator event
// becomes one SSE frame; the stream always ends with exactly one terminal
// event (error or complete) before the connection closes.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var input chatInput
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		_ = writeEvent(w, flusher, orchestrator.Event{
			Type:  orchestrator.EventError,
			Error: "invalid request body",
		})
		return
	}

	// First turns carry no session ID; mint one here so the orchestrator
	// always works with a concrete UUID. The client learns the ID from the
	// terminal complete event.
	if input.SessionID == "" {
		input.SessionID = uuid.New().String()
	}

	userID := callerID(r)
	h.logger.Debug("chat stream started", "session_id", input.SessionID, "user_id", userID)

	events := h.orch.Turn(r.Context(), orchestrator.TurnRequest{
		SessionID: input.SessionID,
		UserID:    userID,
		Message:   input.Message,
	})

	var sent int
	for ev := range events {
		if err := writeEvent(w, flusher, ev); err != nil {
			// Write failure usually means the client went away. The turn
			// keeps running to completion; drain so the channel closes.
			h.logger.Debug("chat stream write failed", "error", err, "events_sent", sent)
			for range events {
			}
			return
		}
		sent++
	}

	h.logger.Debug("chat stream completed", "session_id", input.SessionID, "events", sent)
}

// writeEvent writes a single SSE frame: "event: <type>\ndata: <json>\n\n".
func writeEvent(w io.Writer, flusher http.Flusher, ev orchestrator.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
