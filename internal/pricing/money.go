package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Currency is an ISO 4217 code.
type Currency string

const DefaultCurrency Currency = "BDT"

// Storefront display precision differs from CLDR for these codes.
var minorUnitOverrides = map[Currency]int32{
	"BDT": 0,
	"JPY": 0,
	"KRW": 0,
}

func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return "", fmt.Errorf("invalid currency %q: %w", code, err)
	}
	return Currency(unit.String()), nil
}

// Scale is the number of minor-unit digits amounts are rounded to.
func (c Currency) Scale() int32 {
	if scale, ok := minorUnitOverrides[c]; ok {
		return scale
	}
	unit, err := currency.ParseISO(string(c))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// Round rounds half to even at the currency's scale.
func Round(amount decimal.Decimal, c Currency) decimal.Decimal {
	return amount.RoundBank(c.Scale())
}
