package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/validation"
)

type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetVariant(ctx context.Context, productID, variantID string) (*domain.Variant, error)
	LookupPrices(ctx context.Context, keys []domain.PriceKey) ([]domain.PriceRecord, error)
	GetStock(ctx context.Context, productID string) (*domain.StockLevel, error)
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

type Handler struct {
	repo     Store
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(repo Store, logger *zap.Logger) *Handler {
	return &Handler{
		repo:     repo,
		validate: validation.New(),
		logger:   logger,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListProducts(r.Context())
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to list products", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.GetProduct(r.Context(), productID)
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to get product", zap.Error(err), zap.String("product_id", productID))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleGetVariant(w http.ResponseWriter, r *http.Request) {
	productID, variantID := r.PathValue("productId"), r.PathValue("variantId")
	if productID == "" || variantID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product or variant id")
		return
	}

	variant, err := h.repo.GetVariant(r.Context(), productID, variantID)
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to get variant", zap.Error(err),
			zap.String("product_id", productID), zap.String("variant_id", variantID))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if variant == nil {
		h.writeError(w, http.StatusNotFound, "variant not found")
		return
	}

	h.writeJSON(w, http.StatusOK, variant)
}

type lookupRequest struct {
	Items []domain.PriceKey `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) HandleLookupPrices(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}

	records, err := h.repo.LookupPrices(r.Context(), req.Items)
	if err != nil {
		var unknown *UnknownItemError
		if errors.As(err, &unknown) {
			h.writeJSON(w, http.StatusNotFound, map[string]string{
				"error":      unknown.Error(),
				"product_id": unknown.ProductID,
				"variant_id": unknown.VariantID,
			})
			return
		}
		logging.WithTrace(r.Context(), h.logger).Error("failed to look up prices", zap.Error(err), zap.Int("items", len(req.Items)))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) HandleGetStock(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to get stock", zap.Error(err), zap.String("product_id", productID))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, stock)
}

type stockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

func (h *Handler) HandleReserve(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	req, ok := h.decodeStockRequest(w, r, productID)
	if !ok {
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("product_id", productID), zap.Int("quantity", req.Quantity))

	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		logger.Error("failed to get stock", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if stock == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := h.repo.Reserve(r.Context(), productID, req.Quantity); err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			h.writeError(w, http.StatusConflict, "insufficient stock")
			return
		}
		logger.Error("failed to reserve stock", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithStock(w, r, logger, "stock reserved", productID)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	req, ok := h.decodeStockRequest(w, r, productID)
	if !ok {
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("product_id", productID), zap.Int("quantity", req.Quantity))

	if err := h.repo.Release(r.Context(), productID, req.Quantity); err != nil {
		logger.Error("failed to release stock", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.respondWithStock(w, r, logger, "stock released", productID)
}

func (h *Handler) decodeStockRequest(w http.ResponseWriter, r *http.Request, productID string) (stockRequest, bool) {
	var req stockRequest
	if productID == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return req, false
	}

	return req, true
}

func (h *Handler) respondWithStock(w http.ResponseWriter, r *http.Request, logger *zap.Logger, msg, productID string) {
	stock, err := h.repo.GetStock(r.Context(), productID)
	if err != nil {
		logger.Error("failed to get updated stock", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Info(msg)
	h.writeJSON(w, http.StatusOK, stock)
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
