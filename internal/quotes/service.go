package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/storefront-pricing/internal/catalog"
	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
	"github.com/joao-fontenele/storefront-pricing/internal/validation"
)

var tracer = otel.Tracer("storefront/quotes")

type PriceSource interface {
	LookupPrices(ctx context.Context, keys []domain.PriceKey) ([]domain.PriceRecord, error)
}

type CouponFinder interface {
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

type UsageReader interface {
	Usage(ctx context.Context, couponID, customerID string) (pricing.Usage, error)
}

// Service gathers everything the engine needs for a quote: catalog prices,
// the coupon snapshot and its current usage. It never writes.
type Service struct {
	engine          *pricing.Engine
	prices          PriceSource
	coupons         CouponFinder
	usage           UsageReader
	defaultCurrency pricing.Currency
	validate        *validator.Validate
	metrics         *quoteMetrics
	now             func() time.Time
}

func NewService(prices PriceSource, coupons CouponFinder, usage UsageReader, defaultCurrency pricing.Currency) (*Service, error) {
	m, err := newQuoteMetrics()
	if err != nil {
		return nil, fmt.Errorf("create quote metrics: %w", err)
	}

	return &Service{
		engine:          pricing.NewEngine(defaultCurrency),
		prices:          prices,
		coupons:         coupons,
		usage:           usage,
		defaultCurrency: defaultCurrency,
		validate:        validation.New(),
		metrics:         m,
		now:             time.Now,
	}, nil
}

// Quote prices the request. Carts that cannot be priced return a
// *pricing.Rejection error; malformed requests a *ValidationError.
func (s *Service) Quote(ctx context.Context, req Request) (*Quote, error) {
	ctx, span := tracer.Start(ctx, "quotes.compute",
		trace.WithAttributes(
			attribute.Int("quote.lines", len(req.Lines)),
			attribute.Bool("quote.coupon_requested", strings.TrimSpace(req.CouponCode) != ""),
		),
	)
	defer span.End()

	quote, err := s.quote(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("quote.total", quote.Total.String()),
		attribute.String("quote.coupon_outcome", couponOutcome(quote)),
	)
	s.metrics.record(ctx, quote)
	return quote, nil
}

func (s *Service) quote(ctx context.Context, req Request) (*Quote, error) {
	if err := s.validate.Struct(req); err != nil {
		if field, tag, ok := validation.FailedField(err); ok && tag == "gt" && strings.HasSuffix(field, ".quantity") {
			return nil, pricing.Reject(pricing.ReasonInvalidQuantity, "%s must be at least 1", field)
		}
		return nil, &ValidationError{Message: validation.Message(err)}
	}

	cur := s.defaultCurrency
	if req.Currency != "" {
		parsed, err := pricing.ParseCurrency(req.Currency)
		if err != nil {
			return nil, &ValidationError{Message: "currency must be an ISO 4217 code"}
		}
		cur = parsed
	}

	lines, err := s.cartLines(ctx, req.Lines, cur)
	if err != nil {
		return nil, err
	}

	subtotal, err := pricing.Subtotal(lines)
	if err != nil {
		return nil, err
	}

	in := pricing.QuoteInput{
		Lines:      lines,
		CouponCode: req.CouponCode,
		Now:        s.now().UTC(),
		Currency:   cur,
	}

	code := strings.TrimSpace(req.CouponCode)
	if code != "" && subtotal.IsPositive() {
		coupon, err := s.coupons.FindByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("find coupon %s: %w", code, err)
		}
		if coupon != nil {
			usage, err := s.usage.Usage(ctx, coupon.ID, req.CustomerID)
			if err != nil {
				return nil, fmt.Errorf("read usage of coupon %s: %w", code, err)
			}
			in.Coupon = coupon
			in.Usage = usage
		}
	}

	result, rejection, err := s.engine.ComputeTotal(in)
	if err != nil {
		return nil, err
	}

	priced := make([]PricedLine, 0, len(lines))
	for _, l := range lines {
		total, err := pricing.LineTotal(l)
		if err != nil {
			return nil, err
		}
		priced = append(priced, PricedLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.EffectiveUnitPrice(),
			LineTotal: total,
		})
	}

	return &Quote{PricingResult: result, Lines: priced, CouponRejection: rejection}, nil
}

func (s *Service) cartLines(ctx context.Context, req []LineRequest, cur pricing.Currency) ([]pricing.CartLine, error) {
	if len(req) == 0 {
		return nil, nil
	}

	keys := make([]domain.PriceKey, len(req))
	for i, l := range req {
		keys[i] = domain.PriceKey{ProductID: l.ProductID, VariantID: l.VariantID}
	}

	records, err := s.prices.LookupPrices(ctx, keys)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownItem) {
			return nil, pricing.Reject(pricing.ReasonUnknownProductOrVariant, "%s", err.Error())
		}
		return nil, fmt.Errorf("look up prices: %w", err)
	}
	if len(records) != len(req) {
		return nil, fmt.Errorf("price source returned %d records for %d lines", len(records), len(req))
	}

	lines := make([]pricing.CartLine, len(req))
	for i, rec := range records {
		if rec.Currency != "" && pricing.Currency(rec.Currency) != cur {
			return nil, &ValidationError{Message: fmt.Sprintf("product %s is priced in %s, not %s", rec.ProductID, rec.Currency, cur)}
		}
		lines[i] = pricing.CartLine{
			ProductID:              rec.ProductID,
			VariantID:              rec.VariantID,
			UnitPrice:              rec.BasePrice,
			SalePrice:              rec.SalePrice,
			VariantPriceAdjustment: rec.PriceAdjustment,
			Quantity:               req[i].Quantity,
		}
	}

	return lines, nil
}
