package payments

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/validation"
)

const StatusInitiated = "initiated"

// Handler is a stand-in payment provider. It accepts every well-formed
// payment after a short simulated delay.
type Handler struct {
	validate *validator.Validate
	logger   *zap.Logger
	delay    func() time.Duration
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		validate: validation.New(),
		logger:   logger,
		delay: func() time.Duration {
			return time.Duration(50+rand.IntN(151)) * time.Millisecond
		},
	}
}

type paymentRequest struct {
	OrderID  string          `json:"order_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

type paymentResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (h *Handler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}

	if !req.Amount.IsPositive() {
		h.writeError(w, http.StatusBadRequest, "amount must be greater than 0")
		return
	}

	select {
	case <-time.After(h.delay()):
	case <-r.Context().Done():
		return
	}

	resp := paymentResponse{PaymentID: uuid.New().String(), Status: StatusInitiated}
	logging.WithTrace(r.Context(), h.logger).Info("payment initiated",
		zap.String("payment_id", resp.PaymentID),
		zap.String("order_id", req.OrderID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
	)

	h.writeJSON(w, http.StatusAccepted, resp)
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
