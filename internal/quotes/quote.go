package quotes

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
)

type LineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// Request is the quote input. Prices are never accepted from the client.
type Request struct {
	CustomerID string        `json:"customer_id" validate:"max=128"`
	CouponCode string        `json:"coupon_code,omitempty" validate:"max=64"`
	Currency   string        `json:"currency,omitempty" validate:"omitempty,len=3"`
	Lines      []LineRequest `json:"lines" validate:"max=100,dive"`
}

type PricedLine struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Quote is a priced cart. CouponRejection explains why a requested coupon
// was not applied; the totals are then at full price.
type Quote struct {
	pricing.PricingResult
	Lines           []PricedLine       `json:"lines"`
	CouponRejection *pricing.Rejection `json:"coupon_rejection,omitempty"`
}

// ValidationError is a malformed request, as opposed to a cart the engine
// refuses to price.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
