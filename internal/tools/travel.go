package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tripwise/tripwise/internal/travel"
)

// VarLastRecommendationID is the conversation variable holding the id of
// the most recently persisted recommendation record.
const VarLastRecommendationID = "last_recommendation_id"

// TravelDeps carries the collaborator clients the tourism capabilities
// execute against.
type TravelDeps struct {
	Catalog *travel.CatalogClient
	Orders  *travel.OrderClient
}

// RegisterTravel registers the tourism capability set. Executors capture
// the collaborator clients via closures; registration happens once at
// startup.
func RegisterTravel(r *Registry, deps TravelDeps) error {
	if deps.Catalog == nil || deps.Orders == nil {
		return errors.New("travel capabilities require catalog and order clients")
	}

	defs := []Definition{
		{
			Name:        "search_products",
			Description: "Search tourism products (tours, tickets, local crafts) by keyword, optionally filtered by category.",
			Category:    CategorySearch,
			Parameters: ObjectSchema(map[string]Property{
				"query": {
					Type:        "string",
					Description: "Search keywords, e.g. 'pottery' or 'tea ceremony'.",
				},
				"category": {
					Type:        "string",
					Description: "Optional category name to restrict the search to.",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of results.",
					Minimum:     Float64Ptr(1),
					Maximum:     Float64Ptr(20),
					Default:     float64(5),
				},
			}, "query"),
			Execute: searchProducts(deps.Catalog),
		},
		{
			Name:        "get_product_detail",
			Description: "Fetch the full detail of one product by its numeric id, including price and remaining stock.",
			Category:    CategoryDetail,
			Parameters: ObjectSchema(map[string]Property{
				"product_id": {
					Type:        "integer",
					Description: "The product's numeric identifier.",
					Minimum:     Float64Ptr(1),
				},
			}, "product_id"),
			Execute: productDetail(deps.Catalog),
		},
		{
			Name:        "get_categories",
			Description: "List the product category taxonomy. Use this to map a user's interest onto a category before searching.",
			Category:    CategorySearch,
			Parameters:  ObjectSchema(map[string]Property{}),
			Execute:     listCategories(deps.Catalog),
		},
		{
			Name:        "create_order",
			Description: "Place an order for a product on behalf of the current user.",
			Category:    CategoryOrder,
			Parameters: ObjectSchema(map[string]Property{
				"product_id": {
					Type:        "integer",
					Description: "The product's numeric identifier.",
					Minimum:     Float64Ptr(1),
				},
				"quantity": {
					Type:        "integer",
					Description: "Number of units to order.",
					Minimum:     Float64Ptr(1),
					Maximum:     Float64Ptr(10),
					Default:     float64(1),
				},
			}, "product_id"),
			Execute: createOrder(deps.Orders),
		},
		{
			Name:        "save_recommendation",
			Description: "Persist the final recommendation text so the user can retrieve it later from their profile.",
			Category:    CategoryProfile,
			Parameters: ObjectSchema(map[string]Property{
				"content": {
					Type:        "string",
					Description: "The recommendation text to persist.",
				},
			}, "content"),
			Execute: saveRecommendation(deps.Orders),
		},
	}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return fmt.Errorf("registering %s: %w", def.Name, err)
		}
	}
	return nil
}

func searchProducts(catalog *travel.CatalogClient) Executor {
	return func(ctx context.Context, inv Invocation) Result {
		query, _ := inv.Args["query"].(string)
		category, _ := inv.Args["category"].(string)
		limit := intArg(inv.Args, "limit", 5)

		products, err := catalog.SearchProducts(ctx, query, category, limit)
		if err != nil {
			return FailResult(CodeExecutionFailed, err.Error())
		}
		if len(products) == 0 {
			return OKResult([]travel.Product{}, "no products matched "+strconv.Quote(query))
		}
		return OKResult(products, fmt.Sprintf("%d products matched", len(products)))
	}
}

func productDetail(catalog *travel.CatalogClient) Executor {
	return func(ctx context.Context, inv Invocation) Result {
		id := int64(intArg(inv.Args, "product_id", 0))

		product, err := catalog.ProductDetail(ctx, id)
		if err != nil {
			if errors.Is(err, travel.ErrNotFound) {
				return FailResult(CodeExecutionFailed, fmt.Sprintf("product %d does not exist", id))
			}
			return FailResult(CodeExecutionFailed, err.Error())
		}
		return OKResult(product, "product found")
	}
}

func listCategories(catalog *travel.CatalogClient) Executor {
	return func(ctx context.Context, inv Invocation) Result {
		categories, err := catalog.Categories(ctx)
		if err != nil {
			return FailResult(CodeExecutionFailed, err.Error())
		}
		return OKResult(categories, fmt.Sprintf("%d categories", len(categories)))
	}
}

func createOrder(orders *travel.OrderClient) Executor {
	return func(ctx context.Context, inv Invocation) Result {
		productID := int64(intArg(inv.Args, "product_id", 0))
		quantity := intArg(inv.Args, "quantity", 1)

		order, err := orders.CreateOrder(ctx, inv.UserID, productID, quantity)
		if err != nil {
			return FailResult(CodeExecutionFailed, err.Error())
		}
		return OKResult(order, fmt.Sprintf("order %d created", order.ID))
	}
}

func saveRecommendation(orders *travel.OrderClient) Executor {
	return func(ctx context.Context, inv Invocation) Result {
		content, _ := inv.Args["content"].(string)

		rec, err := orders.SaveRecommendation(ctx, inv.UserID, content)
		if err != nil {
			return FailResult(CodeExecutionFailed, err.Error())
		}
		inv.SetVar(VarLastRecommendationID, strconv.FormatInt(rec.ID, 10))
		return OKResult(rec, fmt.Sprintf("recommendation %d saved", rec.ID))
	}
}

// intArg reads a numeric argument. JSON numbers decode as float64; schema
// defaults may also arrive that way.
func intArg(args map[string]any, key string, fallback int) int {
	v, ok := args[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
