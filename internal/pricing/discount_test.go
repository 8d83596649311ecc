package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

type bogusDiscount struct{}

func (bogusDiscount) isDiscount() {}

func TestComputeDiscount(t *testing.T) {
	tests := []struct {
		name     string
		discount Discount
		subtotal string
		cur      Currency
		want     string
	}{
		{"percentage", Percentage{Value: dec("10")}, "10000", "BDT", "1000"},
		{"percentage capped", Percentage{Value: dec("10"), Cap: decPtr("500")}, "10000", "BDT", "500"},
		{"percentage under cap", Percentage{Value: dec("10"), Cap: decPtr("500")}, "3000", "BDT", "300"},
		{"percentage rounds half to even", Percentage{Value: dec("5")}, "50", "BDT", "2"},
		{"percentage rounds to cents", Percentage{Value: dec("15")}, "19.99", "USD", "3"},
		{"hundred percent equals subtotal", Percentage{Value: dec("100")}, "1234", "BDT", "1234"},
		{"fixed", FixedAmount{Value: dec("300")}, "1000", "BDT", "300"},
		{"fixed clamped to subtotal", FixedAmount{Value: dec("300")}, "200", "BDT", "200"},
		{"zero subtotal", FixedAmount{Value: dec("300")}, "0", "BDT", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeDiscount(tt.discount, dec(tt.subtotal), tt.cur)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestComputeDiscount_UnknownVariant(t *testing.T) {
	_, err := ComputeDiscount(bogusDiscount{}, dec("100"), "BDT")
	assert.ErrorIs(t, err, ErrUnknownDiscount)

	_, err = ComputeDiscount(nil, dec("100"), "BDT")
	assert.ErrorIs(t, err, ErrUnknownDiscount)
}

func TestDiscountFor(t *testing.T) {
	coupon := activeCoupon()
	coupon.MaxDiscountAmount = decPtr("500")

	d, err := DiscountFor(coupon)
	require.NoError(t, err)
	pct, ok := d.(Percentage)
	require.True(t, ok)
	assert.True(t, pct.Value.Equal(dec("10")))
	assert.True(t, pct.Cap.Equal(dec("500")))

	coupon.DiscountType = domain.DiscountTypeFixedAmount
	d, err = DiscountFor(coupon)
	require.NoError(t, err)
	assert.IsType(t, FixedAmount{}, d)

	coupon.DiscountType = "BOGO"
	_, err = DiscountFor(coupon)
	assert.ErrorIs(t, err, ErrUnknownDiscount)
}
