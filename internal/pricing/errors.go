package pricing

import (
	"errors"
	"fmt"
)

type Reason string

const (
	ReasonInvalidQuantity         Reason = "invalid_quantity"
	ReasonUnknownProductOrVariant Reason = "unknown_product_or_variant"
	ReasonNotFound                Reason = "not_found"
	ReasonExpired                 Reason = "expired"
	ReasonInactive                Reason = "inactive"
	ReasonBelowMinimumOrder       Reason = "below_minimum_order"
	ReasonGlobalUsageExhausted    Reason = "global_usage_exhausted"
	ReasonPerUserUsageExhausted   Reason = "per_user_usage_exhausted"
)

// IsCouponReason reports whether the reason describes a coupon that was not
// applied, as opposed to a cart that cannot be priced at all.
func (r Reason) IsCouponReason() bool {
	switch r {
	case ReasonNotFound, ReasonExpired, ReasonInactive, ReasonBelowMinimumOrder,
		ReasonGlobalUsageExhausted, ReasonPerUserUsageExhausted:
		return true
	}
	return false
}

// Rejection is a typed, user-facing refusal. It is not an exception: coupon
// rejections travel inside a successful quote.
type Rejection struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (r *Rejection) Error() string {
	return string(r.Reason) + ": " + r.Message
}

func Reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func IsReason(err error, reason Reason) bool {
	var rej *Rejection
	return errors.As(err, &rej) && rej.Reason == reason
}

var ErrUnknownDiscount = errors.New("pricing: unknown discount type")
