// Package travel holds the typed HTTP clients for the collaborator CRUD
// services (catalog/inventory and orders). The chat subsystem consumes them
// only through capability executors; the business rules behind the endpoints
// belong to the collaborator services.
package travel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDownstream indicates a collaborator service rejected a request or was
// unreachable.
var ErrDownstream = errors.New("downstream service error")

// ErrNotFound indicates the requested record does not exist.
var ErrNotFound = errors.New("record not found")

const defaultTimeout = 10 * time.Second

// Product is a catalog entry (tour, ticket, craft item).
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
	Description string  `json:"description"`
}

// Category is one taxonomy entry of the catalog.
type Category struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Order is a persisted order record.
type Order struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Status    string `json:"status"`
}

// Recommendation is a persisted recommendation record.
type Recommendation struct {
	ID      int64  `json:"id"`
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

// client is the shared request plumbing for both service clients.
type client struct {
	baseURL    string
	httpClient *http.Client
}

func newClient(baseURL string, httpClient *http.Client) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// getJSON issues a GET and decodes the response into out.
func (c client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.do(req, out)
}

// postJSON issues a POST with a JSON body and decodes the response into out.
func (c client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDownstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrDownstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrDownstream, err)
	}
	return nil
}

// CatalogClient reads the product catalog service.
type CatalogClient struct {
	client
}

// NewCatalogClient creates a catalog client. httpClient may be nil.
func NewCatalogClient(baseURL string, httpClient *http.Client) *CatalogClient {
	return &CatalogClient{newClient(baseURL, httpClient)}
}

// SearchProducts queries the catalog. category may be empty; limit is
// clamped by the server.
func (c *CatalogClient) SearchProducts(ctx context.Context, query, category string, limit int) ([]Product, error) {
	q := url.Values{}
	q.Set("q", query)
	if category != "" {
		q.Set("category", category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var products []Product
	if err := c.getJSON(ctx, "/api/products/search", q, &products); err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	return products, nil
}

// ProductDetail fetches one product by id.
func (c *CatalogClient) ProductDetail(ctx context.Context, id int64) (*Product, error) {
	var product Product
	if err := c.getJSON(ctx, "/api/products/"+strconv.FormatInt(id, 10), nil, &product); err != nil {
		return nil, fmt.Errorf("fetching product %d: %w", id, err)
	}
	return &product, nil
}

// Categories lists the catalog taxonomy.
func (c *CatalogClient) Categories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := c.getJSON(ctx, "/api/categories", nil, &categories); err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// OrderClient writes to the order/profile service.
type OrderClient struct {
	client
}

// NewOrderClient creates an order client. httpClient may be nil.
func NewOrderClient(baseURL string, httpClient *http.Client) *OrderClient {
	return &OrderClient{newClient(baseURL, httpClient)}
}

// CreateOrder places an order scoped to userID.
func (c *OrderClient) CreateOrder(ctx context.Context, userID string, productID int64, quantity int) (*Order, error) {
	in := map[string]any{
		"user_id":    userID,
		"product_id": productID,
		"quantity":   quantity,
	}
	var order Order
	if err := c.postJSON(ctx, "/api/orders", in, &order); err != nil {
		return nil, fmt.Errorf("creating order: %w", err)
	}
	return &order, nil
}

// SaveRecommendation persists a recommendation record for userID and
// returns it with its assigned identifier.
func (c *OrderClient) SaveRecommendation(ctx context.Context, userID, content string) (*Recommendation, error) {
	in := map[string]any{
		"user_id": userID,
		"content": content,
	}
	var rec Recommendation
	if err := c.postJSON(ctx, "/api/recommendations", in, &rec); err != nil {
		return nil, fmt.Errorf("saving recommendation: %w", err)
	}
	return &rec, nil
}
