package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

type QuoteInput struct {
	Lines []CartLine
	// CouponCode is what the customer typed; Coupon is the record it resolved
	// to, nil when the code matched nothing.
	CouponCode string
	Coupon     *domain.Coupon
	Usage      Usage
	Now        time.Time
	Currency   Currency
}

type PricingResult struct {
	Subtotal          decimal.Decimal `json:"subtotal"`
	DiscountAmount    decimal.Decimal `json:"discount_amount"`
	Total             decimal.Decimal `json:"total"`
	AppliedCouponCode *string         `json:"applied_coupon_code"`
	Currency          Currency        `json:"currency"`
}

type Engine struct {
	defaultCurrency Currency
}

func NewEngine(defaultCurrency Currency) *Engine {
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}
	return &Engine{defaultCurrency: defaultCurrency}
}

// ComputeTotal prices the cart and applies at most one coupon. Invalid carts
// return an error; a coupon that cannot be applied yields a full-price result
// together with the rejection. The computation has no side effects.
func (e *Engine) ComputeTotal(in QuoteInput) (PricingResult, *Rejection, error) {
	cur := in.Currency
	if cur == "" {
		cur = e.defaultCurrency
	}

	subtotal, err := Subtotal(in.Lines)
	if err != nil {
		return PricingResult{}, nil, err
	}

	result := PricingResult{
		Subtotal:       subtotal,
		DiscountAmount: decimal.Zero,
		Total:          subtotal,
		Currency:       cur,
	}

	if subtotal.IsZero() || strings.TrimSpace(in.CouponCode) == "" {
		return result, nil, nil
	}

	if in.Coupon == nil {
		return result, Reject(ReasonNotFound, "coupon %s does not exist", strings.TrimSpace(in.CouponCode)), nil
	}

	if rej := CheckEligibility(*in.Coupon, subtotal, in.Usage, in.Now); rej != nil {
		return result, rej, nil
	}

	discount, err := DiscountFor(*in.Coupon)
	if err != nil {
		return PricingResult{}, nil, err
	}
	amount, err := ComputeDiscount(discount, subtotal, cur)
	if err != nil {
		return PricingResult{}, nil, err
	}

	code := in.Coupon.Code
	result.DiscountAmount = amount
	result.Total = subtotal.Sub(amount)
	result.AppliedCouponCode = &code
	return result, nil, nil
}
