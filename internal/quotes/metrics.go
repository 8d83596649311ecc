package quotes

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("storefront/quotes")

type quoteMetrics struct {
	quotes   metric.Int64Counter
	discount metric.Float64Histogram
}

func newQuoteMetrics() (*quoteMetrics, error) {
	quotes, err := meter.Int64Counter("pricing.quotes",
		metric.WithDescription("Quotes computed, by coupon outcome"),
		metric.WithUnit("{quote}"),
	)
	if err != nil {
		return nil, err
	}

	discount, err := meter.Float64Histogram("pricing.discount.amount",
		metric.WithDescription("Discount granted on quotes with an applied coupon"),
	)
	if err != nil {
		return nil, err
	}

	return &quoteMetrics{quotes: quotes, discount: discount}, nil
}

func couponOutcome(q *Quote) string {
	switch {
	case q.AppliedCouponCode != nil:
		return "applied"
	case q.CouponRejection != nil:
		return string(q.CouponRejection.Reason)
	default:
		return "none"
	}
}

func (m *quoteMetrics) record(ctx context.Context, q *Quote) {
	currency := attribute.String("currency", string(q.Currency))
	m.quotes.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon.outcome", couponOutcome(q)), currency))

	if q.AppliedCouponCode != nil {
		amount, _ := q.DiscountAmount.Float64()
		m.discount.Record(ctx, amount, metric.WithAttributes(currency))
	}
}
