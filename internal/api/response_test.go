package api

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tripwise/tripwise/internal/log"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	writeJSON(w, http.StatusCreated, map[string]string{"hello": "world"}, log.NewNop())

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"hello":"world"}`, w.Body.String())
}

func TestWriteJSON_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	// NaN is not representable in JSON; headers must not have been sent.
	writeJSON(w, http.StatusOK, math.NaN(), log.NewNop())

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	writeError(w, http.StatusNotFound, "not_found", "session not found", log.NewNop())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"code":"not_found","message":"session not found"}}`, w.Body.String())
}
