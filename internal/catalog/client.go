package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

var (
	// ErrProductNotFound is returned when the upstream has no such product.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrUpstream wraps transport failures and unexpected upstream statuses.
	ErrUpstream = errors.New("catalog: upstream unavailable")
)

const maxBodyBytes = 8 << 20

// Doer executes outbound requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client reads the upstream product REST API.
type Client struct {
	HTTP    Doer
	BaseURL string
}

// ListProducts fetches GET {base}/products.
func (c Client) ListProducts(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/products")
}

// GetProduct fetches GET {base}/products/{id}.
func (c Client) GetProduct(ctx context.Context, id int) ([]byte, error) {
	return c.get(ctx, "/products/"+strconv.Itoa(id))
}

// ListCategories fetches GET {base}/categories.
func (c Client) ListCategories(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "/categories")
}

// ListSubcategories fetches GET {base}/categories/{id}/subcategories.
func (c Client) ListSubcategories(ctx context.Context, categoryID int) ([]byte, error) {
	return c.get(ctx, "/categories/"+strconv.Itoa(categoryID)+"/subcategories")
}

func (c Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.HTTP == nil || c.BaseURL == "" {
		return nil, fmt.Errorf("%w: client not configured", ErrUpstream)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrUpstream, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", path, ErrProductNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: GET %s: status %d", ErrUpstream, path, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUpstream, path, err)
	}
	return body, nil
}
