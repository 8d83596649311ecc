package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

// Discount is either Percentage or FixedAmount.
type Discount interface {
	isDiscount()
}

type Percentage struct {
	Value decimal.Decimal
	Cap   *decimal.Decimal
}

type FixedAmount struct {
	Value decimal.Decimal
}

func (Percentage) isDiscount()  {}
func (FixedAmount) isDiscount() {}

var hundred = decimal.NewFromInt(100)

func DiscountFor(c domain.Coupon) (Discount, error) {
	switch c.DiscountType {
	case domain.DiscountTypePercentage:
		return Percentage{Value: c.DiscountValue, Cap: c.MaxDiscountAmount}, nil
	case domain.DiscountTypeFixedAmount:
		return FixedAmount{Value: c.DiscountValue}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDiscount, c.DiscountType)
}

// ComputeDiscount returns the discount for subtotal, rounded to the currency
// scale and clamped to [0, subtotal].
func ComputeDiscount(d Discount, subtotal decimal.Decimal, cur Currency) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch d := d.(type) {
	case Percentage:
		amount = subtotal.Mul(d.Value).Div(hundred)
		if d.Cap != nil && amount.GreaterThan(*d.Cap) {
			amount = *d.Cap
		}
	case FixedAmount:
		amount = d.Value
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", ErrUnknownDiscount, d)
	}

	amount = Round(amount, cur)
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount, nil
}
