package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/session"
)

// sessionHandler serves session inspection and deletion.
type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// sessionSummary is the JSON shape of GET /api/v1/sessions/{id}.
// Message bodies are not exposed here; the chat stream is the only surface
// that returns conversation content.
type sessionSummary struct {
	ID           string            `json:"id"`
	MessageCount int               `json:"message_count"`
	Variables    map[string]string `json:"variables,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// getSession returns a summary of one session. A session that belongs to a
// different user gets the same 404 as one that does not exist, so ownership
// is never probeable.
func (h *sessionHandler) getSession(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	conv, err := h.store.Get(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrOwnerMismatch) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("failed to load session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "get_failed", "failed to load session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, sessionSummary{
		ID:           conv.ID.String(),
		MessageCount: len(conv.Messages),
		Variables:    conv.Variables,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}, h.logger)
}

// deleteSession removes a session from both storage layers.
func (h *sessionHandler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id, userID); err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrOwnerMismatch) {
			writeError(w, http.StatusNotFound, "not_found", "session not found", h.logger)
			return
		}
		h.logger.Error("failed to delete session", "error", err, "session_id", id)
		writeError(w, http.StatusInternalServerError, "delete_failed", "failed to delete session", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}

// parseRequest validates the path ID and caller identity shared by both
// session endpoints. Responds and returns ok=false on failure.
func (h *sessionHandler) parseRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid session ID", h.logger)
		return uuid.Nil, "", false
	}

	userID := callerID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_required", "caller identity required", h.logger)
		return uuid.Nil, "", false
	}

	return id, userID, true
}
