package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/coupons"
	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
	"github.com/joao-fontenele/storefront-pricing/internal/quotes"
	"github.com/joao-fontenele/storefront-pricing/internal/validation"
)

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
}

// Pricing is the part of the pricing service orders depend on.
type Pricing interface {
	Quote(ctx context.Context, req quotes.Request) (*quotes.Quote, error)
	Redeem(ctx context.Context, req coupons.RedeemRequest) error
	Release(ctx context.Context, orderID string) error
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	repo      Store
	pricing   Pricing
	publisher Publisher
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewHandler wires the orders API. publisher may be nil when Kafka is not
// configured; orders are then persisted without an event.
func NewHandler(repo Store, pricing Pricing, publisher Publisher, logger *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		pricing:   pricing,
		publisher: publisher,
		validate:  validation.New(),
		logger:    logger,
	}
}

type createOrderRequest struct {
	CustomerID string               `json:"customer_id" validate:"required,max=128"`
	CouponCode string               `json:"coupon_code,omitempty"`
	Currency   string               `json:"currency,omitempty"`
	Lines      []quotes.LineRequest `json:"lines" validate:"required,min=1"`
}

type orderResponse struct {
	*domain.Order
	CouponRejection *pricing.Rejection `json:"coupon_rejection,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("customer_id", req.CustomerID))

	quote, err := h.pricing.Quote(r.Context(), quotes.Request{
		CustomerID: req.CustomerID,
		CouponCode: req.CouponCode,
		Currency:   req.Currency,
		Lines:      req.Lines,
	})
	if err != nil {
		var (
			rej     *pricing.Rejection
			invalid *quotes.ValidationError
		)
		switch {
		case errors.As(err, &rej):
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":   rej.Message,
				"reason":  string(rej.Reason),
				"message": rej.Message,
			})
		case errors.As(err, &invalid):
			h.writeError(w, http.StatusBadRequest, invalid.Message)
		default:
			logger.Error("failed to price order", zap.Error(err))
			h.writeError(w, http.StatusBadGateway, "pricing service unavailable")
		}
		return
	}

	order := orderFromQuote(req.CustomerID, quote)
	if err := h.repo.Create(r.Context(), order); err != nil {
		logger.Error("failed to create order", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger = logger.With(zap.String("order_id", order.ID))

	if h.publisher != nil {
		event := domain.OrderCreatedEvent{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Lines:      order.Lines,
			Total:      order.Total,
			Currency:   order.Currency,
			CouponCode: order.CouponCode,
			Timestamp:  order.CreatedAt,
		}
		if err := h.publisher.Publish(r.Context(), order.ID, event); err != nil {
			logger.Error("failed to publish order created event", zap.Error(err))
		}
	}

	logger.Info("order created", zap.String("total", order.Total.String()), zap.String("currency", order.Currency))
	h.writeJSON(w, http.StatusCreated, orderResponse{Order: order, CouponRejection: quote.CouponRejection})
}

func orderFromQuote(customerID string, q *quotes.Quote) *domain.Order {
	lines := make([]domain.OrderLine, len(q.Lines))
	for i, l := range q.Lines {
		lines[i] = domain.OrderLine{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		}
	}

	return &domain.Order{
		CustomerID:     customerID,
		Lines:          lines,
		Subtotal:       q.Subtotal,
		DiscountAmount: q.DiscountAmount,
		Total:          q.Total,
		Currency:       string(q.Currency),
		CouponCode:     q.AppliedCouponCode,
		Status:         domain.OrderStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", zap.Error(err), zap.String("id", id))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type updateStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=pending confirmed shipped cancelled"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("order_id", id))

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("failed to get order", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	from := order.Status
	if !from.CanTransitionTo(req.Status) {
		h.writeError(w, http.StatusConflict, fmt.Sprintf("cannot move order from %s to %s", from, req.Status))
		return
	}

	// undo reverts the coupon side effect when the status write does not land.
	var undo func(context.Context) error

	if order.CouponCode != nil {
		switch {
		case req.Status == domain.OrderStatusConfirmed:
			redeem := coupons.RedeemRequest{
				CouponCode: *order.CouponCode,
				CustomerID: order.CustomerID,
				OrderID:    order.ID,
			}
			err := h.pricing.Redeem(r.Context(), redeem)
			if errors.Is(err, ErrRedemptionRefused) {
				logger.Info("coupon redemption refused, order stays pending", zap.Error(err))
				h.writeJSON(w, http.StatusConflict, map[string]string{
					"error":   "coupon_redemption_failed",
					"message": err.Error(),
				})
				return
			}
			if err != nil {
				logger.Error("failed to redeem coupon", zap.Error(err))
				h.writeError(w, http.StatusBadGateway, "pricing service unavailable")
				return
			}
			undo = func(ctx context.Context) error { return h.pricing.Release(ctx, order.ID) }
		case req.Status == domain.OrderStatusCancelled && from == domain.OrderStatusConfirmed:
			if err := h.pricing.Release(r.Context(), order.ID); err != nil {
				logger.Error("failed to release coupon redemption", zap.Error(err))
				h.writeError(w, http.StatusBadGateway, "pricing service unavailable")
				return
			}
			undo = func(ctx context.Context) error {
				return h.pricing.Redeem(ctx, coupons.RedeemRequest{
					CouponCode: *order.CouponCode,
					CustomerID: order.CustomerID,
					OrderID:    order.ID,
				})
			}
		}
	}

	updated, err := h.repo.UpdateStatus(r.Context(), id, from, req.Status)
	if err != nil {
		logger.Error("failed to update order status", zap.Error(err))
		h.compensate(r.Context(), logger, id, req.Status, undo)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if updated == nil {
		h.compensate(r.Context(), logger, id, req.Status, undo)
		h.writeError(w, http.StatusConflict, "order status changed concurrently")
		return
	}

	logger.Info("order status updated", zap.String("from", string(from)), zap.String("status", string(updated.Status)))
	h.writeJSON(w, http.StatusOK, updated)
}

// compensate runs undo after a status write that did not land, unless a
// concurrent request already moved the order to the same status and so owns
// the coupon side effect.
func (h *Handler) compensate(ctx context.Context, logger *zap.Logger, id string, to domain.OrderStatus, undo func(context.Context) error) {
	if undo == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	current, err := h.repo.GetByID(ctx, id)
	if err == nil && current != nil && current.Status == to {
		return
	}

	if err := undo(ctx); err != nil {
		logger.Error("failed to revert coupon redemption", zap.Error(err), zap.String("status", string(to)))
		return
	}
	logger.Info("coupon redemption reverted after failed status update", zap.String("status", string(to)))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list orders", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Debug("orders listed", zap.Int("count", len(orders)))
	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
