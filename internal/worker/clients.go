package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

// ErrStatusConflict means the orders service refused the transition, for
// example because the coupon could not be redeemed.
var ErrStatusConflict = errors.New("order status conflict")

type OrdersClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOrdersClient(baseURL string, httpClient *http.Client) *OrdersClient {
	return &OrdersClient{baseURL: baseURL, httpClient: httpClient}
}

// ErrOrderNotFound means the orders service has no order with that id.
var ErrOrderNotFound = errors.New("order not found")

func (c *OrdersClient) Status(ctx context.Context, orderID string) (domain.OrderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/orders/%s", c.baseURL, orderID), nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get order %s: %w", orderID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", fmt.Errorf("get order %s: %w", orderID, ErrOrderNotFound)
	default:
		return "", fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}

	var body struct {
		Status domain.OrderStatus `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return body.Status, nil
}

func (c *OrdersClient) UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	url := fmt.Sprintf("%s/orders/%s/status", c.baseURL, orderID)
	resp, err := doJSON(ctx, c.httpClient, http.MethodPatch, url, map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("set order %s to %s: %w", orderID, status, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return fmt.Errorf("set order %s to %s: %w: %s", orderID, status, ErrStatusConflict, body.Error)
	default:
		return fmt.Errorf("orders service returned status %d", resp.StatusCode)
	}
}

type PaymentsClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPaymentsClient(baseURL string, httpClient *http.Client) *PaymentsClient {
	return &PaymentsClient{baseURL: baseURL, httpClient: httpClient}
}

type paymentRequest struct {
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Initiate starts a payment for the order total and returns the payment id.
func (c *PaymentsClient) Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error) {
	resp, err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/payments", paymentRequest{
		OrderID:  orderID,
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		return "", fmt.Errorf("initiate payment for order %s: %w", orderID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("payments service returned status %d", resp.StatusCode)
	}

	var body struct {
		PaymentID string `json:"payment_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode payment response: %w", err)
	}

	return body.PaymentID, nil
}

func doJSON(ctx context.Context, client *http.Client, method, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}
