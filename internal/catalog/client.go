package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

// Client talks to the catalog service over HTTP. It serves both as the price
// source for quotes and as the worker's stock reservation API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *Client) LookupPrices(ctx context.Context, keys []domain.PriceKey) ([]domain.PriceRecord, error) {
	resp, err := c.post(ctx, "/prices/lookup", map[string]any{"items": keys})
	if err != nil {
		return nil, fmt.Errorf("look up prices: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var records []domain.PriceRecord
		if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
			return nil, fmt.Errorf("decode price lookup response: %w", err)
		}
		return records, nil
	case http.StatusNotFound:
		unknown := &UnknownItemError{}
		if err := json.NewDecoder(resp.Body).Decode(unknown); err != nil || unknown.ProductID == "" {
			return nil, fmt.Errorf("catalog service returned status %d: %w", resp.StatusCode, ErrUnknownItem)
		}
		return nil, unknown
	default:
		return nil, fmt.Errorf("catalog service returned status %d for price lookup", resp.StatusCode)
	}
}

func (c *Client) Reserve(ctx context.Context, productID string, quantity int) error {
	return c.adjustStock(ctx, productID, "reserve", quantity)
}

func (c *Client) Release(ctx context.Context, productID string, quantity int) error {
	return c.adjustStock(ctx, productID, "release", quantity)
}

func (c *Client) adjustStock(ctx context.Context, productID, action string, quantity int) error {
	resp, err := c.post(ctx, fmt.Sprintf("/products/%s/%s", productID, action), map[string]int{"quantity": quantity})
	if err != nil {
		return fmt.Errorf("%s stock for product %s: %w", action, productID, err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog service returned status %d for %s of product %s", resp.StatusCode, action, productID)
	}

	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}
