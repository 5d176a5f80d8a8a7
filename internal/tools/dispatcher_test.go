package tools

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tripwise/tripwise/internal/llm"
	"github.com/tripwise/tripwise/internal/log"
)

// recordingEmitter captures caller-visible notifications under a lock;
// dispatch runs executors concurrently.
type recordingEmitter struct {
	mu      sync.Mutex
	calls   []string
	results []string
}

func (e *recordingEmitter) OnToolCall(name string, _ map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
}

func (e *recordingEmitter) OnToolResult(name string, _ Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, name)
}

func wireCall(index int, name, args string) llm.ToolCall {
	return llm.ToolCall{
		Index: index,
		ID:    "call_" + name,
		Type:  "function",
		Function: llm.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func newTestDispatcher(t *testing.T, suppressed ...string) (*Registry, *Dispatcher) {
	t.Helper()
	r := NewRegistry()
	return r, NewDispatcher(r, suppressed, log.NewNop())
}

func TestDispatcher_ExecutesInCallOrder(t *testing.T) {
	r, d := newTestDispatcher(t)
	for _, name := range []string{"first", "second"} {
		require.NoError(t, r.Register(Definition{
			Name:       name,
			Parameters: ObjectSchema(map[string]Property{}),
			Execute: func(ctx context.Context, inv Invocation) Result {
				return OKResult(nil, "done")
			},
		}))
	}

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "first", "{}"),
		wireCall(1, "second", "{}"),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 2)
	assert.Equal(t, "first", outcomes[0].Call.Function.Name)
	assert.Equal(t, "second", outcomes[1].Call.Function.Name)
	for _, o := range outcomes {
		assert.False(t, o.Skipped)
		assert.True(t, o.Result.OK)
	}
}

func TestDispatcher_RunsCallsConcurrently(t *testing.T) {
	r, d := newTestDispatcher(t)

	// Both executors block until the other has started; sequential
	// execution would deadlock past the timeout.
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	for _, name := range []string{"a", "b"} {
		require.NoError(t, r.Register(Definition{
			Name:       name,
			Parameters: ObjectSchema(map[string]Property{}),
			Execute: func(ctx context.Context, inv Invocation) Result {
				started <- struct{}{}
				<-release
				return OKResult(nil, "done")
			},
		}))
	}

	go func() {
		for range 2 {
			<-started
		}
		close(release)
	}()

	done := make(chan []Outcome, 1)
	go func() {
		done <- d.Dispatch(context.Background(), []llm.ToolCall{
			wireCall(0, "a", "{}"),
			wireCall(1, "b", "{}"),
		}, "user-1", nil, nil)
	}()

	select {
	case outcomes := <-done:
		require.Len(t, outcomes, 2)
		assert.True(t, outcomes[0].Result.OK)
		assert.True(t, outcomes[1].Result.OK)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch did not run calls concurrently")
	}
}

func TestDispatcher_MalformedArguments(t *testing.T) {
	r, d := newTestDispatcher(t)
	require.NoError(t, r.Register(testDefinition("search_products")))

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "search_products", `{"query": `),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Result.OK)
	assert.Equal(t, CodeMalformedArguments, outcomes[0].Result.Code)
}

func TestDispatcher_UnknownCapability(t *testing.T) {
	_, d := newTestDispatcher(t)

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "teleport", `{}`),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Result.OK)
	assert.Equal(t, CodeUnknownCapability, outcomes[0].Result.Code)
}

func TestDispatcher_SchemaRejection(t *testing.T) {
	r, d := newTestDispatcher(t)
	require.NoError(t, r.Register(testDefinition("search_products")))

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "search_products", `{"other":"field"}`),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Result.OK)
	assert.Equal(t, CodeInvalidArguments, outcomes[0].Result.Code)
	assert.Contains(t, outcomes[0].Result.Message, "query")
}

func TestDispatcher_PanicBecomesFailedResult(t *testing.T) {
	r, d := newTestDispatcher(t)
	require.NoError(t, r.Register(Definition{
		Name:       "faulty",
		Parameters: ObjectSchema(map[string]Property{}),
		Execute: func(ctx context.Context, inv Invocation) Result {
			panic("boom")
		},
	}))
	require.NoError(t, r.Register(testDefinition("search_products")))

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "faulty", "{}"),
		wireCall(1, "search_products", `{"query":"tea"}`),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Result.OK)
	assert.Equal(t, CodeExecutionFailed, outcomes[0].Result.Code)
	assert.Contains(t, outcomes[0].Result.Message, "boom")
	assert.True(t, outcomes[1].Result.OK, "sibling call must still execute")
}

func TestDispatcher_SkipsIncompleteCalls(t *testing.T) {
	r, d := newTestDispatcher(t)
	require.NoError(t, r.Register(testDefinition("search_products")))

	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "", `{}`),
		wireCall(1, "search_products", ""),
		wireCall(2, "search_products", `{"query":"tea"}`),
	}, "user-1", nil, nil)

	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Skipped)
	assert.True(t, outcomes[1].Skipped)
	assert.False(t, outcomes[2].Skipped)
	assert.True(t, outcomes[2].Result.OK)
}

func TestDispatcher_SuppressedResultNotEmitted(t *testing.T) {
	r, d := newTestDispatcher(t, "get_categories")
	require.NoError(t, r.Register(Definition{
		Name:       "get_categories",
		Parameters: ObjectSchema(map[string]Property{}),
		Execute:    okExecutor,
	}))
	require.NoError(t, r.Register(testDefinition("search_products")))

	emitter := &recordingEmitter{}
	outcomes := d.Dispatch(context.Background(), []llm.ToolCall{
		wireCall(0, "get_categories", "{}"),
		wireCall(1, "search_products", `{"query":"tea"}`),
	}, "user-1", nil, emitter)

	// The suppressed result still reaches the model-facing outcome.
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Result.OK)

	assert.ElementsMatch(t, []string{"get_categories", "search_products"}, emitter.calls)
	assert.Equal(t, []string{"search_products"}, emitter.results)
}

func TestDispatcher_SetVarReachesExecutor(t *testing.T) {
	r, d := newTestDispatcher(t)
	require.NoError(t, r.Register(Definition{
		Name:       "remember",
		Parameters: ObjectSchema(map[string]Property{}),
		Execute: func(ctx context.Context, inv Invocation) Result {
			inv.SetVar("marker", "42")
			return OKResult(nil, "stored")
		},
	}))

	var mu sync.Mutex
	vars := map[string]string{}
	setVar := func(key, value string) {
		mu.Lock()
		defer mu.Unlock()
		vars[key] = value
	}

	d.Dispatch(context.Background(), []llm.ToolCall{wireCall(0, "remember", "{}")}, "user-1", setVar, nil)
	assert.Equal(t, "42", vars["marker"])
}

func TestDispatcher_UserIDPropagates(t *testing.T) {
	r, d := newTestDispatcher(t)
	var seen string
	require.NoError(t, r.Register(Definition{
		Name:       "whoami",
		Parameters: ObjectSchema(map[string]Property{}),
		Execute: func(ctx context.Context, inv Invocation) Result {
			seen = inv.UserID
			return OKResult(nil, "done")
		},
	}))

	d.Dispatch(context.Background(), []llm.ToolCall{wireCall(0, "whoami", "{}")}, "user-77", nil, nil)
	assert.Equal(t, "user-77", seen)
}

func TestDispatcher_EmptyCallList(t *testing.T) {
	_, d := newTestDispatcher(t)
	outcomes := d.Dispatch(context.Background(), nil, "user-1", nil, nil)
	assert.Empty(t, outcomes)
}
