package pricing

import "github.com/shopspring/decimal"

// CartLine is one priced line of a cart. Prices come from the catalog,
// never from the client.
type CartLine struct {
	ProductID              string
	VariantID              string
	UnitPrice              decimal.Decimal
	SalePrice              *decimal.Decimal
	VariantPriceAdjustment decimal.Decimal
	Quantity               int
}

// EffectiveUnitPrice applies the sale price when it is lower than the unit
// price, then the variant adjustment. The result never goes below zero.
func (l CartLine) EffectiveUnitPrice() decimal.Decimal {
	price := l.UnitPrice
	if l.SalePrice != nil && l.SalePrice.LessThan(price) {
		price = *l.SalePrice
	}
	price = price.Add(l.VariantPriceAdjustment)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}

func LineTotal(l CartLine) (decimal.Decimal, error) {
	if l.Quantity <= 0 {
		return decimal.Zero, Reject(ReasonInvalidQuantity,
			"quantity for product %s must be at least 1, got %d", l.ProductID, l.Quantity)
	}
	return l.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(l.Quantity))), nil
}

// Subtotal sums the line totals. The first invalid line aborts the sum.
func Subtotal(lines []CartLine) (decimal.Decimal, error) {
	subtotal := decimal.Zero
	for _, line := range lines {
		total, err := LineTotal(line)
		if err != nil {
			return decimal.Zero, err
		}
		subtotal = subtotal.Add(total)
	}
	return subtotal, nil
}
