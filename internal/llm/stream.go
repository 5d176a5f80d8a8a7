package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
)

// doneSentinel is the literal end-of-stream marker.
const doneSentinel = "[DONE]"

// scanBufSize bounds a single SSE line. Argument fragments are small, but
// some providers batch large content deltas into one frame.
const scanBufSize = 1024 * 1024

// ContentFunc receives each content fragment as soon as it is parsed.
// Returning an error aborts the stream (used for caller disconnect).
type ContentFunc func(text string) error

// pendingCall accumulates the fragments of one tool call, keyed by the
// call's index within the turn.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// parser reconstructs a Completion from a framed delta stream.
//
// It is a two-state machine: streaming until the [DONE] sentinel (or EOF),
// then done. Content fragments are forwarded to onContent immediately —
// never buffered — and simultaneously appended to the assistant text.
// Tool-call fragments are concatenated per index in arrival order.
// A malformed frame is logged and skipped; one corrupt frame must not lose
// an otherwise-successful stream.
type parser struct {
	onContent ContentFunc
	logger    *slog.Logger

	content  strings.Builder
	calls    map[int]*pendingCall
	order    []int
	finish   string
}

func newParser(onContent ContentFunc, logger *slog.Logger) *parser {
	return &parser{
		onContent: onContent,
		logger:    logger,
		calls:     make(map[int]*pendingCall),
	}
}

// run consumes the response body until the sentinel, EOF, or an abort from
// the content callback.
func (p *parser) run(body io.Reader) (*Completion, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue // keep-alive or comment
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// Field we don't use (event:, id:, retry:). Not an error.
			continue
		}
		data = strings.TrimSpace(data)

		if data == doneSentinel {
			return p.finalize(), nil
		}

		if err := p.consume(data); err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stream: %w", err)
	}

	// EOF without sentinel: the transport closed early. Whatever was
	// accumulated is still returned so the turn can finish.
	p.logger.Warn("stream ended without sentinel")
	return p.finalize(), nil
}

// consume applies one framed event. Malformed framing is skipped.
func (p *parser) consume(data string) error {
	var chunk streamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		p.logger.Warn("skipping malformed stream frame", "error", err, "frame_len", len(data))
		return nil
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			p.content.WriteString(choice.Delta.Content)
			if err := p.onContent(choice.Delta.Content); err != nil {
				return fmt.Errorf("forwarding content: %w", err)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			p.accumulate(tc)
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			p.finish = *choice.FinishReason
		}
	}
	return nil
}

// accumulate merges one tool-call fragment into the pending call for its
// index. The first fragment bearing a name establishes the call's name;
// every fragment contributes its argument text in arrival order.
func (p *parser) accumulate(tc toolCallDelta) {
	call, ok := p.calls[tc.Index]
	if !ok {
		call = &pendingCall{}
		p.calls[tc.Index] = call
		p.order = append(p.order, tc.Index)
	}
	if tc.ID != "" && call.id == "" {
		call.id = tc.ID
	}
	if tc.Function.Name != "" && call.name == "" {
		call.name = tc.Function.Name
	}
	call.args.WriteString(tc.Function.Arguments)
}

// finalize renders the accumulated state. Calls are ordered by index so the
// result is independent of fragment interleaving.
func (p *parser) finalize() *Completion {
	sort.Ints(p.order)
	calls := make([]ToolCall, 0, len(p.order))
	for _, idx := range p.order {
		pc := p.calls[idx]
		calls = append(calls, ToolCall{
			Index: idx,
			ID:    pc.id,
			Type:  "function",
			Function: FunctionCall{
				Name:      pc.name,
				Arguments: pc.args.String(),
			},
		})
	}

	return &Completion{
		Content:      p.content.String(),
		ToolCalls:    calls,
		FinishReason: p.finish,
	}
}
