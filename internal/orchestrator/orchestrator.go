// Package orchestrator drives one chat turn end to end: load the
// conversation, stream the model's response, dispatch requested
// capabilities, feed results back for a continuation, and persist the
// updated conversation. The caller drains the turn's event channel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/session"
	"github.com/tripwise/tripwise/internal/tools"
)

// Defaults applied by New for zero config fields.
const (
	DefaultMaxDispatchRounds = 3
	DefaultHistoryWindow     = 20
	DefaultTurnTimeout       = 5 * time.Minute

	// eventBuffer bounds the outbound channel; a slow consumer holds the
	// turn back instead of growing memory.
	eventBuffer = 64
)

const systemPromptFormat = `You are TripWise, a concierge for cultural tourism: local crafts, tea culture, workshops, tours and tickets. Answer in the user's language, keep recommendations concrete, and place orders only when the user clearly asks.

You can call the following capabilities:
%s

Prefer get_categories to map an interest onto the catalog before searching. When a capability fails, explain the problem briefly and continue helping.`

// Upstream is the streaming chat-completion dependency.
type Upstream interface {
	StreamChat(ctx context.Context, messages []llm.Message, catalog []llm.Tool, onContent llm.ContentFunc) (*llm.Completion, error)
}

// Config wires an Orchestrator.
type Config struct {
	Upstream   Upstream
	Store      *session.Store
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher

	// MaxDispatchRounds bounds how many times one turn may loop through
	// dispatch before the model is forced to answer in text.
	MaxDispatchRounds int

	// HistoryWindow is the number of recent messages sent upstream.
	HistoryWindow int

	// TurnTimeout bounds a whole turn including continuations.
	TurnTimeout time.Duration

	Retry   RetryConfig
	Breaker CircuitBreakerConfig
	Logger  *slog.Logger
}

// Orchestrator is safe for concurrent use; turns for the same session are
// serialized internally.
type Orchestrator struct {
	upstream     Upstream
	store        *session.Store
	registry     *tools.Registry
	dispatcher   *tools.Dispatcher
	locks        *sessionLocks
	breaker      *CircuitBreaker
	retry        RetryConfig
	maxRounds    int
	window       int
	turnTimeout  time.Duration
	systemPrompt string
	logger       *slog.Logger
}

// New validates the wiring and builds the orchestrator. The system prompt
// embeds the capability catalog once; the registry is append-only at
// runtime.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("orchestrator: upstream is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("orchestrator: capability registry is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("orchestrator: dispatcher is required")
	}

	if cfg.MaxDispatchRounds <= 0 {
		cfg.MaxDispatchRounds = DefaultMaxDispatchRounds
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		upstream:     cfg.Upstream,
		store:        cfg.Store,
		registry:     cfg.Registry,
		dispatcher:   cfg.Dispatcher,
		locks:        newSessionLocks(),
		breaker:      NewCircuitBreaker(cfg.Breaker),
		retry:        cfg.Retry,
		maxRounds:    cfg.MaxDispatchRounds,
		window:       cfg.HistoryWindow,
		turnTimeout:  cfg.TurnTimeout,
		systemPrompt: fmt.Sprintf(systemPromptFormat, cfg.Registry.PromptCatalog()),
		logger:       logger,
	}, nil
}

// TurnRequest is one inbound user message.
type TurnRequest struct {
	SessionID string
	UserID    string
	Message   string
}

// Turn runs one chat turn and returns its ordered event channel. The
// channel closes after the terminal event (exactly one of error or
// complete).
//
// ctx models the caller's connection: when it is canceled, forwarding
// stops, but in-flight capability execution finishes and the conversation
// is still persisted.
func (o *Orchestrator) Turn(ctx context.Context, req TurnRequest) <-chan Event {
	events := make(chan Event, eventBuffer)
	go func() {
		defer close(events)
		t := &turn{callerCtx: ctx, events: events}
		o.run(req, t)
	}()
	return events
}

// turn carries the outbound side of one running turn. Once the caller is
// gone every emit becomes a no-op; the turn itself keeps going.
type turn struct {
	callerCtx context.Context
	events    chan<- Event
	gone      atomic.Bool
}

func (t *turn) emit(ev Event) {
	if t.gone.Load() {
		return
	}
	// Checked separately first: with buffer room free, a single select
	// could still pick the send over a done context.
	select {
	case <-t.callerCtx.Done():
		t.gone.Store(true)
		return
	default:
	}
	select {
	case t.events <- ev:
	case <-t.callerCtx.Done():
		t.gone.Store(true)
	}
}

func (t *turn) fail(message string) {
	t.emit(Event{Type: EventError, Error: message})
}

// turnEmitter forwards dispatcher notifications onto the event channel.
type turnEmitter struct {
	t *turn
}

func (e *turnEmitter) OnToolCall(name string, args map[string]any) {
	e.t.emit(Event{Type: EventToolCall, Capability: name, Args: args})
}

func (e *turnEmitter) OnToolResult(name string, result tools.Result) {
	e.t.emit(Event{Type: EventToolResult, Capability: name, Result: &result})
}

func (o *Orchestrator) run(req TurnRequest, t *turn) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		t.fail("message must not be empty")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		t.fail("caller identity is required")
		return
	}
	sid, err := uuid.Parse(strings.TrimSpace(req.SessionID))
	if err != nil {
		t.fail("session id must be a valid UUID")
		return
	}

	release := o.locks.acquire(sid.String())
	defer release()

	// The turn outlives the caller's connection so persisted state stays
	// consistent; only the timeout bounds it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.callerCtx), o.turnTimeout)
	defer cancel()

	conv, err := o.store.Get(ctx, sid, req.UserID)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrOwnerMismatch):
		// Rejected before any upstream call; the caller sees the same
		// response as for a missing session.
		o.logger.Warn("session ownership rejected", "session_id", sid, "user_id", req.UserID)
		t.fail("session not found")
		return
	case errors.Is(err, session.ErrNotFound):
		conv = session.NewConversation(sid, req.UserID)
		o.logger.Info("conversation created", "session_id", sid, "user_id", req.UserID)
	default:
		o.logger.Error("session load failed", "session_id", sid, "error", err)
		t.fail("unable to load the session")
		return
	}

	conv.Append(llm.Message{Role: llm.RoleUser, Content: message})

	catalog, err := o.registry.WireCatalog()
	if err != nil {
		o.logger.Error("capability catalog rendering failed", "error", err)
		t.fail("internal error")
		return
	}

	onContent := func(text string) error {
		t.emit(Event{Type: EventContent, Content: text})
		return nil
	}

	var varMu sync.Mutex
	setVar := func(key, value string) {
		varMu.Lock()
		conv.SetVariable(key, value)
		varMu.Unlock()
	}

	start := time.Now()
	for round := 0; ; round++ {
		budgetSpent := round >= o.maxRounds
		roundCatalog := catalog
		if budgetSpent {
			// Dispatch budget spent: a bare catalog forces a text answer.
			roundCatalog = nil
		}

		completion, err := o.streamWithRetry(ctx, o.outbound(conv), roundCatalog, onContent)
		if err != nil {
			o.logger.Error("turn failed",
				"session_id", conv.ID,
				"round", round,
				"elapsed", time.Since(start),
				"error", err,
			)
			t.fail(callerMessage(err))
			return
		}

		// The budget round is terminal even if the model ignored the bare
		// catalog and requested more calls.
		if budgetSpent || !completion.HasToolCalls() {
			conv.Append(llm.Message{Role: llm.RoleAssistant, Content: completion.Content})
			break
		}

		outcomes := o.dispatcher.Dispatch(ctx, completion.ToolCalls, req.UserID, setVar, &turnEmitter{t: t})

		// A lead-in sentence streamed before the calls were recognized is
		// kept and merged with the rendered results into one assistant
		// message, never stored standalone.
		conv.Append(llm.Message{
			Role:    llm.RoleAssistant,
			Content: mergeAssistantText(completion.Content, outcomes),
		})
	}

	// Persist whether or not dispatch occurred, and even if the caller is
	// gone. Store absorbs layer failures.
	_ = o.store.Put(ctx, conv)

	o.logger.Info("turn complete",
		"session_id", conv.ID,
		"user_id", req.UserID,
		"messages", len(conv.Messages),
		"elapsed", time.Since(start),
	)
	t.emit(Event{Type: EventComplete, SessionID: conv.ID})
}

// outbound builds the upstream message list: system instruction plus the
// recent history window.
func (o *Orchestrator) outbound(conv *session.Conversation) []llm.Message {
	recent := conv.Recent(o.window)
	messages := make([]llm.Message, 0, len(recent)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.systemPrompt})
	return append(messages, recent...)
}

// mergeAssistantText joins the lead-in text with each executed call's
// rendered result.
func mergeAssistantText(leadIn string, outcomes []tools.Outcome) string {
	var b strings.Builder
	b.WriteString(leadIn)
	for _, oc := range outcomes {
		if oc.Skipped {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(oc.Call.Function.Name)
		b.WriteString(" -> ")
		b.WriteString(oc.Result.Render())
	}
	return b.String()
}

// callerMessage maps an internal failure to the single generic error line
// the caller sees; the detail stays in the server log.
func callerMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the request timed out, please try again"
	case errors.Is(err, ErrCircuitOpen):
		return "the assistant is temporarily unavailable, please try again shortly"
	default:
		return "the assistant could not complete the request, please try again"
	}
}
