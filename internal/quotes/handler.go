package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
)

type Quoter interface {
	Quote(ctx context.Context, req Request) (*Quote, error)
}

type Handler struct {
	service Quoter
	logger  *zap.Logger
}

func NewHandler(service Quoter, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("customer_id", req.CustomerID))

	quote, err := h.service.Quote(r.Context(), req)
	if err != nil {
		var (
			rej     *pricing.Rejection
			invalid *ValidationError
		)
		switch {
		case errors.As(err, &rej):
			logger.Info("cart rejected", zap.String("reason", string(rej.Reason)), zap.String("message", rej.Message))
			h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":   rej.Message,
				"reason":  string(rej.Reason),
				"message": rej.Message,
			})
		case errors.As(err, &invalid):
			h.writeError(w, http.StatusBadRequest, invalid.Message)
		default:
			logger.Error("failed to compute quote", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	fields := []zap.Field{
		zap.String("subtotal", quote.Subtotal.String()),
		zap.String("total", quote.Total.String()),
		zap.String("coupon_outcome", couponOutcome(quote)),
	}
	logger.Info("quote computed", fields...)
	h.writeJSON(w, http.StatusOK, quote)
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
