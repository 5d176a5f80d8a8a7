// Package tools provides the capability layer: the registry of actions the
// model may request, the parameter schemas they expose, and the dispatcher
// that executes reconstructed calls.
//
// Design principles:
//   - Explicit registry: a string key to an executor value, registered once
//     at startup. Lookup is a plain map read under RLock.
//   - Results are values: an executor never panics its failure upward; every
//     outcome is a Result the model can read and adapt to.
//   - Dependency injection: executors capture their collaborator clients via
//     closures; the package holds no global state.
package tools

import "context"

// Capability categories used for grouping in the management API.
const (
	CategorySearch  = "search"
	CategoryDetail  = "detail"
	CategoryOrder   = "order"
	CategoryProfile = "profile"
)

// Invocation carries one resolved call into an executor.
type Invocation struct {
	// UserID is the caller's identity. Executors scope downstream requests
	// with it; it is never taken from model output.
	UserID string

	// Args is the parsed argument object, already validated against the
	// capability's parameter schema.
	Args map[string]any

	// SetVar records a named conversation variable (e.g. the identifier of
	// a record the executor persisted). Safe for concurrent use.
	SetVar func(key, value string)
}

// Executor runs one capability call. It must return a Result rather than an
// error: failures travel back to the model as values.
type Executor func(ctx context.Context, inv Invocation) Result

// Definition describes one registered capability.
type Definition struct {
	// Name is the stable, globally unique identifier the model uses to
	// request invocation.
	Name string

	// Description is shown to the model; it decides when to call.
	Description string

	// Category groups capabilities for the management API.
	Category string

	// Parameters is the JSON-Schema contract for the argument object.
	Parameters Schema

	// Execute runs the capability.
	Execute Executor
}
