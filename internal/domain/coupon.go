package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountTypePercentage  DiscountType = "PERCENTAGE"
	DiscountTypeFixedAmount DiscountType = "FIXED_AMOUNT"
)

// Coupon is the merchant-owned coupon record. Nil limits mean unlimited.
type Coupon struct {
	ID                string           `json:"id"`
	Code              string           `json:"code"`
	DiscountType      DiscountType     `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount,omitempty"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	UsagePerUser      *int             `json:"usage_per_user,omitempty"`
	RedemptionCount   int              `json:"redemption_count"`
	StartDate         time.Time        `json:"start_date"`
	EndDate           time.Time        `json:"end_date"`
	IsActive          bool             `json:"is_active"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

type Redemption struct {
	ID         string    `json:"id"`
	CouponID   string    `json:"coupon_id"`
	CouponCode string    `json:"coupon_code"`
	CustomerID string    `json:"customer_id"`
	OrderID    string    `json:"order_id"`
	RedeemedAt time.Time `json:"redeemed_at"`
}
