package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tripwise/tripwise/internal/llm"
)

// RetryConfig bounds the backoff retry around the initial upstream
// connection.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient-failure substrings by category,
// matched case-insensitively. The endpoint reports failures as text, not
// typed errors, so substring matching is the only handle we have.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},
	{"500", "502", "503", "504", "unavailable", "overloaded"},
	{"connection reset", "connection refused", "temporary"},
}

// retryableError reports whether the failure is transient. Only errors
// raised before any delta was received qualify: a mid-stream failure is
// never retried, since fragments were already forwarded to the caller.
func retryableError(err error) bool {
	if !errors.Is(err, llm.ErrUpstream) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// streamWithRetry drives one upstream stream with circuit-breaker
// admission and exponential backoff on transient connection failures.
func (o *Orchestrator) streamWithRetry(ctx context.Context, messages []llm.Message, catalog []llm.Tool, onContent llm.ContentFunc) (*llm.Completion, error) {
	var lastErr error
	delay := o.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= o.retry.MaxRetries; attempt++ {
		if err := o.breaker.Allow(); err != nil {
			return nil, err
		}

		completion, err := o.upstream.StreamChat(ctx, messages, catalog, onContent)
		if err == nil {
			o.breaker.Success()
			o.logger.Debug("stream completed", "attempts", attempt+1, "elapsed", time.Since(start))
			return completion, nil
		}

		if errors.Is(err, llm.ErrUpstream) {
			o.breaker.Failure()
		}
		lastErr = err

		if !retryableError(err) || attempt == o.retry.MaxRetries {
			break
		}

		o.logger.Debug("retrying upstream connection",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, o.retry.MaxInterval)
		}
	}

	return nil, lastErr
}
