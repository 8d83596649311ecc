package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/joao-fontenele/storefront-pricing/internal/coupons"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
	"github.com/joao-fontenele/storefront-pricing/internal/quotes"
)

// ErrRedemptionRefused means the pricing service would not record the
// redemption: the coupon is exhausted, expired, gone, or already used by
// another order.
var ErrRedemptionRefused = errors.New("coupon redemption refused")

type PricingClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPricingClient(baseURL string, httpClient *http.Client) *PricingClient {
	return &PricingClient{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type errorBody struct {
	Error   string         `json:"error"`
	Reason  pricing.Reason `json:"reason"`
	Message string         `json:"message"`
}

func decodeErrorBody(r io.Reader) errorBody {
	var body errorBody
	_ = json.NewDecoder(r).Decode(&body)
	return body
}

// Quote asks the pricing service for totals. Carts the engine refuses come
// back as *pricing.Rejection, malformed ones as *quotes.ValidationError.
func (c *PricingClient) Quote(ctx context.Context, req quotes.Request) (*quotes.Quote, error) {
	resp, err := c.send(ctx, http.MethodPost, "/quotes", req)
	if err != nil {
		return nil, fmt.Errorf("request quote: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		var q quotes.Quote
		if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		return &q, nil
	case http.StatusUnprocessableEntity:
		body := decodeErrorBody(resp.Body)
		return nil, &pricing.Rejection{Reason: body.Reason, Message: body.Message}
	case http.StatusBadRequest:
		return nil, &quotes.ValidationError{Message: decodeErrorBody(resp.Body).Error}
	default:
		return nil, fmt.Errorf("pricing service returned status %d for quote", resp.StatusCode)
	}
}

func (c *PricingClient) Redeem(ctx context.Context, req coupons.RedeemRequest) error {
	resp, err := c.send(ctx, http.MethodPost, "/redemptions", req)
	if err != nil {
		return fmt.Errorf("redeem coupon %s: %w", req.CouponCode, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict, http.StatusNotFound:
		body := decodeErrorBody(resp.Body)
		return fmt.Errorf("%w: %s", ErrRedemptionRefused, body.Error)
	default:
		return fmt.Errorf("pricing service returned status %d for redemption of %s", resp.StatusCode, req.CouponCode)
	}
}

// Release gives back the redemption held by the order. An order without a
// redemption is not an error.
func (c *PricingClient) Release(ctx context.Context, orderID string) error {
	resp, err := c.send(ctx, http.MethodDelete, "/redemptions/"+orderID, nil)
	if err != nil {
		return fmt.Errorf("release redemption of order %s: %w", orderID, err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("pricing service returned status %d for release of order %s", resp.StatusCode, orderID)
	}

	return nil
}

func (c *PricingClient) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}
