package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okExecutor(ctx context.Context, inv Invocation) Result {
	return OKResult(nil, "ok")
}

func testDefinition(name string) Definition {
	return Definition{
		Name:        name,
		Description: "description of " + name,
		Category:    CategorySearch,
		Parameters: ObjectSchema(map[string]Property{
			"query": {Type: "string", Description: "a query"},
		}, "query"),
		Execute: okExecutor,
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("search_products")))

	def, ok := r.Resolve("search_products")
	require.True(t, ok)
	assert.Equal(t, "search_products", def.Name)

	_, ok = r.Resolve("nope")
	assert.False(t, ok)
}

func TestRegistry_DuplicateNameRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("search_products")))

	err := r.Register(testDefinition("search_products"))
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_EmptyNameRejected(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Register(testDefinition("  ")), ErrEmptyName)
}

func TestRegistry_NilExecutorRejected(t *testing.T) {
	r := NewRegistry()
	def := testDefinition("search_products")
	def.Execute = nil
	assert.ErrorIs(t, r.Register(def), ErrNilExecutor)
}

func TestRegistry_AllPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry()
	names := []string{"zeta", "alpha", "mid"}
	for _, name := range names {
		require.NoError(t, r.Register(testDefinition(name)))
	}

	defs := r.All()
	require.Len(t, defs, 3)
	for i, def := range defs {
		assert.Equal(t, names[i], def.Name)
	}
}

func TestRegistry_WireCatalog(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("search_products")))

	catalog, err := r.WireCatalog()
	require.NoError(t, err)
	require.Len(t, catalog, 1)

	assert.Equal(t, "function", catalog[0].Type)
	assert.Equal(t, "search_products", catalog[0].Function.Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(catalog[0].Function.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema, "properties")
	assert.Equal(t, []any{"query"}, schema["required"])
}

func TestRegistry_PromptCatalog(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(testDefinition("search_products")))
	require.NoError(t, r.Register(testDefinition("create_order")))

	got := r.PromptCatalog()
	want := "search_products: description of search_products\ncreate_order: description of create_order"
	assert.Equal(t, want, got)
}

func TestRegistry_ConcurrentResolve(t *testing.T) {
	r := NewRegistry()
	for i := range 10 {
		require.NoError(t, r.Register(testDefinition(fmt.Sprintf("cap_%d", i))))
	}

	done := make(chan struct{})
	for range 8 {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range 100 {
				_, ok := r.Resolve(fmt.Sprintf("cap_%d", i%10))
				assert.True(t, ok)
			}
		}()
	}
	for range 8 {
		<-done
	}
}
