package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const TopicOrderCreated = "order.created"

type OrderCreatedEvent struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Lines      []OrderLine     `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency"`
	CouponCode *string         `json:"coupon_code"`
	Timestamp  time.Time       `json:"timestamp"`
}
