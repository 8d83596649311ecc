package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-pricing/internal/catalog"
	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/logging"
)

type StockReserver interface {
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

type OrderUpdater interface {
	Status(ctx context.Context, orderID string) (domain.OrderStatus, error)
	UpdateStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
}

type PaymentInitiator interface {
	Initiate(ctx context.Context, orderID string, amount decimal.Decimal, currency string) (string, error)
}

const (
	outcomeCompleted       = "completed"
	outcomeOutOfStock      = "out_of_stock"
	outcomeCouponRefused   = "coupon_refused"
	outcomePaymentFailed   = "payment_failed"
	outcomeDuplicate       = "duplicate"
	maxParallelReservation = 4
)

// CheckoutHandler drives an order from created to paid: reserve stock,
// confirm the order (which redeems its coupon), initiate payment. Each
// failure undoes the steps before it.
type CheckoutHandler struct {
	stock    StockReserver
	orders   OrderUpdater
	payments PaymentInitiator
	logger   *zap.Logger
	outcomes metric.Int64Counter
}

func NewCheckoutHandler(stock StockReserver, orders OrderUpdater, payments PaymentInitiator, logger *zap.Logger) (*CheckoutHandler, error) {
	outcomes, err := otel.Meter("storefront/worker").Int64Counter("checkout.orders",
		metric.WithDescription("Orders processed by the checkout worker, by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create checkout counter: %w", err)
	}

	return &CheckoutHandler{
		stock:    stock,
		orders:   orders,
		payments: payments,
		logger:   logger,
		outcomes: outcomes,
	}, nil
}

type reservation struct {
	ProductID string
	Quantity  int
}

// Handle processes one order.created event. Returning an error asks the
// consumer to retry; it is only done while nothing is left reserved.
func (h *CheckoutHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	logger := logging.WithTrace(ctx, h.logger).With(
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
	)
	logger.Info("processing order created event", zap.Int("lines", len(event.Lines)))

	// A redelivered event finds the order already past pending.
	status, err := h.orders.Status(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("get order status: %w", err)
	}
	if status != domain.OrderStatusPending {
		logger.Info("order already processed, skipping", zap.String("status", string(status)))
		h.record(ctx, outcomeDuplicate)
		return nil
	}

	reserved, err := h.reserveStock(ctx, event.Lines)
	if err != nil {
		h.releaseStock(ctx, logger, reserved)
		if !errors.Is(err, catalog.ErrInsufficientStock) {
			return fmt.Errorf("reserve stock: %w", err)
		}
		logger.Info("insufficient stock, cancelling order", zap.Error(err))
		return h.cancel(ctx, logger, event.OrderID, outcomeOutOfStock)
	}

	if err := h.orders.UpdateStatus(ctx, event.OrderID, domain.OrderStatusConfirmed); err != nil {
		h.releaseStock(ctx, logger, reserved)
		if !errors.Is(err, ErrStatusConflict) {
			return fmt.Errorf("confirm order: %w", err)
		}
		logger.Info("order could not be confirmed, cancelling", zap.Error(err))
		return h.cancel(ctx, logger, event.OrderID, outcomeCouponRefused)
	}

	if !event.Total.IsPositive() {
		logger.Info("order total is zero, skipping payment")
		h.record(ctx, outcomeCompleted)
		return nil
	}

	paymentID, err := h.payments.Initiate(ctx, event.OrderID, event.Total, event.Currency)
	if err != nil {
		logger.Error("failed to initiate payment, rolling back", zap.Error(err))
		h.releaseStock(ctx, logger, reserved)
		return h.cancel(ctx, logger, event.OrderID, outcomePaymentFailed)
	}

	h.record(ctx, outcomeCompleted)
	logger.Info("order processing complete", zap.String("payment_id", paymentID), zap.String("total", event.Total.String()))
	return nil
}

// reserveStock reserves every product of the order concurrently and returns
// what was reserved, also on failure, so the caller can release it. A failed
// reservation does not cancel the others: a cancelled call may still have
// reserved stock that would then never be released.
func (h *CheckoutHandler) reserveStock(ctx context.Context, lines []domain.OrderLine) ([]reservation, error) {
	var (
		mu       sync.Mutex
		reserved []reservation
	)

	var g errgroup.Group
	g.SetLimit(maxParallelReservation)

	for _, r := range aggregate(lines) {
		g.Go(func() error {
			if err := h.stock.Reserve(ctx, r.ProductID, r.Quantity); err != nil {
				return err
			}
			mu.Lock()
			reserved = append(reserved, r)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return reserved, err
}

func (h *CheckoutHandler) releaseStock(ctx context.Context, logger *zap.Logger, reserved []reservation) {
	for _, r := range reserved {
		if err := h.stock.Release(ctx, r.ProductID, r.Quantity); err != nil {
			logger.Error("failed to release stock", zap.Error(err), zap.String("product_id", r.ProductID))
		}
	}
}

func (h *CheckoutHandler) cancel(ctx context.Context, logger *zap.Logger, orderID, outcome string) error {
	if err := h.orders.UpdateStatus(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		logger.Error("failed to cancel order", zap.Error(err))
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	h.record(ctx, outcome)
	logger.Info("order cancelled", zap.String("outcome", outcome))
	return nil
}

func (h *CheckoutHandler) record(ctx context.Context, outcome string) {
	h.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// aggregate sums quantities per product; stock is tracked per product, not
// per variant.
func aggregate(lines []domain.OrderLine) []reservation {
	totals := make(map[string]int)
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}

	out := make([]reservation, 0, len(totals))
	for id, qty := range totals {
		out = append(out, reservation{ProductID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
