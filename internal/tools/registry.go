package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tripwise/tripwise/internal/llm"
)

// Registry errors.
var (
	ErrDuplicateName = errors.New("capability name already registered")
	ErrEmptyName     = errors.New("capability name is empty")
	ErrNilExecutor   = errors.New("capability executor is nil")
)

// Registry holds the set of invocable capabilities. Registration happens
// once at process start; afterwards the registry is read-only and safe for
// concurrent lookup during dispatch.
//
// Iteration order is insertion order, so prompt and wire catalogs are
// deterministic across restarts.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*Definition
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Definition)}
}

// Register adds a capability. It fails if the name is empty, the executor is
// nil, or the name is already taken.
func (r *Registry) Register(def Definition) error {
	if strings.TrimSpace(def.Name) == "" {
		return ErrEmptyName
	}
	if def.Execute == nil {
		return fmt.Errorf("%w: %s", ErrNilExecutor, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
	}
	r.byName[def.Name] = &def
	r.order = append(r.order, def.Name)
	return nil
}

// Resolve looks up a capability by name.
func (r *Registry) Resolve(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byName[name]
	return def, ok
}

// All returns every registered capability in insertion order.
func (r *Registry) All() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name])
	}
	return defs
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// WireCatalog renders the registry into the "function" list the upstream
// endpoint expects.
func (r *Registry) WireCatalog() ([]llm.Tool, error) {
	defs := r.All()
	catalog := make([]llm.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshaling parameters for %s: %w", def.Name, err)
		}
		catalog = append(catalog, llm.Tool{
			Type: "function",
			Function: llm.Function{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return catalog, nil
}

// PromptCatalog renders a newline-joined "name: description" list for
// embedding in the system instructions.
func (r *Registry) PromptCatalog() string {
	defs := r.All()
	lines := make([]string, 0, len(defs))
	for _, def := range defs {
		lines = append(lines, def.Name+": "+def.Description)
	}
	return strings.Join(lines, "\n")
}
