package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

// Usage is the redemption count snapshot the checker decides on.
type Usage struct {
	Global      int
	PerCustomer int
}

// CheckEligibility returns nil when the coupon can be applied, otherwise the
// first failing rule in the order: window, active flag, minimum order,
// global limit, per-customer limit.
func CheckEligibility(c domain.Coupon, subtotal decimal.Decimal, usage Usage, now time.Time) *Rejection {
	if now.Before(c.StartDate) || now.After(c.EndDate) {
		return Reject(ReasonExpired, "coupon %s is valid from %s to %s",
			c.Code, c.StartDate.UTC().Format(time.RFC3339), c.EndDate.UTC().Format(time.RFC3339))
	}
	if !c.IsActive {
		return Reject(ReasonInactive, "coupon %s is not active", c.Code)
	}
	if c.MinOrderAmount != nil && subtotal.LessThan(*c.MinOrderAmount) {
		return Reject(ReasonBelowMinimumOrder, "coupon %s requires a minimum order of %s, subtotal is %s",
			c.Code, c.MinOrderAmount.String(), subtotal.String())
	}
	if c.UsageLimit != nil && usage.Global >= *c.UsageLimit {
		return Reject(ReasonGlobalUsageExhausted, "coupon %s has reached its usage limit of %d",
			c.Code, *c.UsageLimit)
	}
	if c.UsagePerUser != nil && usage.PerCustomer >= *c.UsagePerUser {
		return Reject(ReasonPerUserUsageExhausted, "coupon %s can be used at most %d times per customer",
			c.Code, *c.UsagePerUser)
	}
	return nil
}
