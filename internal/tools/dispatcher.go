package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tripwise/tripwise/internal/llm"
)

// Outcome pairs one reconstructed call with its result. Skipped marks calls
// that were incomplete telemetry (no name or empty argument buffer) and were
// never executed.
type Outcome struct {
	Call    llm.ToolCall
	Result  Result
	Skipped bool
}

// Dispatcher resolves and executes fully-reconstructed capability calls.
// Independent calls within one turn run concurrently; Dispatch joins all of
// them before returning, so partial results never leak into the
// continuation request.
type Dispatcher struct {
	registry   *Registry
	suppressed map[string]struct{}
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. suppressed lists capability names
// whose results stay off the caller-visible channel.
func NewDispatcher(registry *Registry, suppressed []string, logger *slog.Logger) *Dispatcher {
	set := make(map[string]struct{}, len(suppressed))
	for _, name := range suppressed {
		set[name] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:   registry,
		suppressed: set,
		logger:     logger,
	}
}

// Suppressed reports whether a capability's results are hidden from the
// caller-visible channel.
func (d *Dispatcher) Suppressed(name string) bool {
	_, ok := d.suppressed[name]
	return ok
}

// Dispatch executes every call and returns outcomes in call order. A single
// bad call never blocks the others: parse and resolution failures become
// failed Results, and panics inside executors are captured as failures.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall, userID string, setVar func(key, value string), emitter Emitter) []Outcome {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if setVar == nil {
		setVar = func(string, string) {}
	}

	outcomes := make([]Outcome, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		if call.Function.Name == "" || call.Function.Arguments == "" {
			// Incomplete telemetry, not an error.
			d.logger.Debug("skipping incomplete capability call", "index", call.Index, "name", call.Function.Name)
			outcomes[i] = Outcome{Call: call, Skipped: true}
			continue
		}

		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			outcomes[i] = Outcome{
				Call:   call,
				Result: d.dispatchOne(ctx, call, userID, setVar, emitter),
			}
		}(i, call)
	}
	wg.Wait()

	return outcomes
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call llm.ToolCall, userID string, setVar func(key, value string), emitter Emitter) Result {
	name := call.Function.Name

	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		d.logger.Warn("malformed capability arguments", "capability", name, "error", err)
		return FailResult(CodeMalformedArguments, fmt.Sprintf("arguments for %s are not valid JSON", name))
	}

	def, ok := d.registry.Resolve(name)
	if !ok {
		d.logger.Warn("unknown capability requested", "capability", name)
		return FailResult(CodeUnknownCapability, fmt.Sprintf("capability %s not found", name))
	}

	if err := def.Parameters.Validate(args); err != nil {
		d.logger.Warn("capability arguments rejected", "capability", name, "error", err)
		code := CodeInvalidArguments
		if !errors.Is(err, ErrInvalidArguments) {
			code = CodeMalformedArguments
		}
		return FailResult(code, err.Error())
	}

	emitter.OnToolCall(name, args)

	result := d.execute(ctx, def, Invocation{
		UserID: userID,
		Args:   args,
		SetVar: setVar,
	})

	if !d.Suppressed(name) {
		emitter.OnToolResult(name, result)
	}

	d.logger.Debug("capability executed",
		"capability", name,
		"ok", result.OK,
		"code", result.Code,
	)
	return result
}

// execute runs the executor with panic capture: a fault inside a capability
// becomes a failed Result, never an aborted turn.
func (d *Dispatcher) execute(ctx context.Context, def *Definition, inv Invocation) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("capability panicked", "capability", def.Name, "panic", r)
			result = FailResult(CodeExecutionFailed, fmt.Sprintf("%v", r))
		}
	}()
	return def.Execute(ctx, inv)
}
