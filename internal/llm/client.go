package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// ErrUpstream indicates the endpoint rejected the request or failed before
// any delta was received. Checked with errors.Is by the retry layer.
var ErrUpstream = errors.New("upstream chat-completion error")

// Config holds client construction parameters.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int

	// HTTPClient overrides the transport (tests). The default client has no
	// timeout: turn deadlines are carried by the request context.
	HTTPClient *http.Client

	// Limiter throttles outbound requests proactively. Nil means a default
	// of 10 req/s with burst 30.
	Limiter *rate.Limiter

	Logger *slog.Logger
}

// Client talks to one OpenAI-compatible chat-completion endpoint.
// Safe for concurrent use.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Client. Logger must not be nil in production wiring; nil
// falls back to slog.Default.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  httpClient,
		limiter:     limiter,
		logger:      logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// StreamChat issues one streamed chat-completion request and drives the
// delta parser over the response. Every content fragment is handed to
// onContent as it arrives; the assembled Completion is returned once the
// stream terminates.
//
// This is the only point in a turn that blocks on the remote party; the
// caller bounds it through ctx.
func (c *Client) StreamChat(ctx context.Context, messages []Message, tools []Tool, onContent ContentFunc) (*Completion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Stream:      true,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("closing response body", "error", cerr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	c.logger.Debug("stream opened", "model", c.model, "messages", len(messages), "tools", len(tools))
	return newParser(onContent, c.logger).run(resp.Body)
}

// statusError extracts the endpoint's error message from a non-200 reply.
func (c *Client) statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if readErr != nil {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, er.Error.Message)
	}
	return fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
}
