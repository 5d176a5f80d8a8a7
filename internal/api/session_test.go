package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/session"
)

func seedSession(t *testing.T, f *serverFixture, userID string) *session.Conversation {
	t.Helper()

	conv := session.NewConversation(uuid.New(), userID)
	conv.Append(llm.Message{Role: llm.RoleUser, Content: "hello"})
	conv.Append(llm.Message{Role: llm.RoleAssistant, Content: "hi"})
	conv.SetVariable("last_recommendation_id", "42")
	require.NoError(t, f.store.Put(context.Background(), conv))
	return conv
}

func sessionRequest(method, id, userID string) *http.Request {
	r := httptest.NewRequest(method, "/api/v1/sessions/"+id, nil)
	if userID != "" {
		r.Header.Set("X-User-ID", userID)
	}
	return r
}

func TestGetSession(t *testing.T) {
	f := newServerFixture(t)
	conv := seedSession(t, f, "user-1")

	w := f.do(sessionRequest(http.MethodGet, conv.ID.String(), "user-1"))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), conv.ID.String())
	assert.Contains(t, w.Body.String(), `"message_count":2`)
	assert.Contains(t, w.Body.String(), `"last_recommendation_id":"42"`)
}

func TestGetSession_NotFound(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(sessionRequest(http.MethodGet, uuid.New().String(), "user-1"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestGetSession_ForeignOwnerLooksMissing(t *testing.T) {
	f := newServerFixture(t)
	conv := seedSession(t, f, "user-1")

	w := f.do(sessionRequest(http.MethodGet, conv.ID.String(), "user-2"))

	// Indistinguishable from a session that never existed.
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestGetSession_InvalidID(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(sessionRequest(http.MethodGet, "not-a-uuid", "user-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_id")
}

func TestGetSession_MissingIdentity(t *testing.T) {
	f := newServerFixture(t)
	conv := seedSession(t, f, "user-1")

	w := f.do(sessionRequest(http.MethodGet, conv.ID.String(), ""))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "user_required")
}

func TestDeleteSession(t *testing.T) {
	f := newServerFixture(t)
	conv := seedSession(t, f, "user-1")

	w := f.do(sessionRequest(http.MethodDelete, conv.ID.String(), "user-1"))
	require.Equal(t, http.StatusOK, w.Code)

	_, err := f.store.Get(context.Background(), conv.ID, "user-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteSession_ForeignOwnerLooksMissing(t *testing.T) {
	f := newServerFixture(t)
	conv := seedSession(t, f, "user-1")

	w := f.do(sessionRequest(http.MethodDelete, conv.ID.String(), "user-2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Still present for its owner.
	_, err := f.store.Get(context.Background(), conv.ID, "user-1")
	assert.NoError(t, err)
}

func TestCapabilitiesList(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/capabilities", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"search_products"`)
	assert.Contains(t, w.Body.String(), `"count":1`)
}
