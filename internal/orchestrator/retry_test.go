package orchestrator

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tripwise/tripwise/internal/llm"
)

func TestRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", fmt.Errorf("%w: status 429: slow down", llm.ErrUpstream), true},
		{"server error", fmt.Errorf("%w: status 503: unavailable", llm.ErrUpstream), true},
		{"gateway timeout", fmt.Errorf("%w: status 504", llm.ErrUpstream), true},
		{"connection refused", fmt.Errorf("%w: dial tcp: connection refused", llm.ErrUpstream), true},
		{"auth failure", fmt.Errorf("%w: status 401: bad key", llm.ErrUpstream), false},
		{"bad request", fmt.Errorf("%w: status 400: invalid model", llm.ErrUpstream), false},
		{
			// A mid-stream failure is never retried: fragments already
			// reached the caller.
			name: "mid-stream failure",
			err:  errors.New("reading stream: connection reset"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableError(tt.err))
		})
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Less(t, cfg.InitialInterval, cfg.MaxInterval)
}
