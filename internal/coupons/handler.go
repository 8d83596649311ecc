package coupons

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
	"github.com/joao-fontenele/storefront-pricing/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Store interface {
	Create(ctx context.Context, c *domain.Coupon) error
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
	List(ctx context.Context, limit, offset int) ([]domain.Coupon, error)
	Update(ctx context.Context, code string, patch Patch) (*domain.Coupon, error)
}

type Redeemer interface {
	Redeem(ctx context.Context, req RedeemRequest) (*domain.Redemption, error)
	Release(ctx context.Context, orderID string) (*domain.Redemption, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, code string) error
}

type Handler struct {
	store    Store
	redeemer Redeemer
	cache    Invalidator
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler wires the admin and redemption endpoints. cache may be nil when
// snapshots are not cached.
func NewHandler(store Store, redeemer Redeemer, cache Invalidator, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		redeemer: redeemer,
		cache:    cache,
		validate: validation.New(),
		logger:   logger,
	}
}

type createCouponRequest struct {
	Code              string              `json:"code" validate:"required,max=64"`
	DiscountType      domain.DiscountType `json:"discount_type" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	DiscountValue     decimal.Decimal     `json:"discount_value"`
	MinOrderAmount    *decimal.Decimal    `json:"min_order_amount"`
	MaxDiscountAmount *decimal.Decimal    `json:"max_discount_amount"`
	UsageLimit        *int                `json:"usage_limit" validate:"omitempty,min=1"`
	UsagePerUser      *int                `json:"usage_per_user" validate:"omitempty,min=1"`
	StartDate         time.Time           `json:"start_date" validate:"required"`
	EndDate           time.Time           `json:"end_date" validate:"required"`
	IsActive          *bool               `json:"is_active"`
}

// checkRules covers the cross-field and decimal rules the validator cannot express.
func (r createCouponRequest) checkRules() string {
	if !r.StartDate.Before(r.EndDate) {
		return "end_date must be after start_date"
	}
	if !r.DiscountValue.IsPositive() {
		return "discount_value must be greater than 0"
	}
	if r.DiscountType == domain.DiscountTypePercentage && r.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		return "discount_value must be at most 100 for percentage coupons"
	}
	if r.MaxDiscountAmount != nil && !r.MaxDiscountAmount.IsPositive() {
		return "max_discount_amount must be greater than 0"
	}
	if r.MinOrderAmount != nil && r.MinOrderAmount.IsNegative() {
		return "min_order_amount must not be negative"
	}
	return ""
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Code = strings.TrimSpace(req.Code)
	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}
	if msg := req.checkRules(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	coupon := &domain.Coupon{
		Code:              req.Code,
		DiscountType:      req.DiscountType,
		DiscountValue:     req.DiscountValue,
		MinOrderAmount:    req.MinOrderAmount,
		MaxDiscountAmount: req.MaxDiscountAmount,
		UsageLimit:        req.UsageLimit,
		UsagePerUser:      req.UsagePerUser,
		StartDate:         req.StartDate.UTC(),
		EndDate:           req.EndDate.UTC(),
		IsActive:          req.IsActive == nil || *req.IsActive,
	}

	logger := logging.WithTrace(r.Context(), h.logger)
	if err := h.store.Create(r.Context(), coupon); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			h.writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		logger.Error("failed to create coupon", zap.Error(err), zap.String("code", req.Code))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.invalidate(r.Context(), logger, coupon.Code)
	logger.Info("coupon created", zap.String("code", coupon.Code), zap.String("coupon_id", coupon.ID))
	h.writeJSON(w, http.StatusCreated, coupon)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		h.writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxPageSize))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		h.writeError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	coupons, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to list coupons", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, coupons)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}

	coupon, err := h.store.FindByCode(r.Context(), code)
	if err != nil {
		logging.WithTrace(r.Context(), h.logger).Error("failed to get coupon", zap.Error(err), zap.String("code", code))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if coupon == nil {
		h.writeError(w, http.StatusNotFound, "coupon not found")
		return
	}

	h.writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing coupon code")
		return
	}

	var patch Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger)
	current, err := h.store.FindByCode(r.Context(), code)
	if err != nil {
		logger.Error("failed to get coupon", zap.Error(err), zap.String("code", code))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if current == nil {
		h.writeError(w, http.StatusNotFound, "coupon not found")
		return
	}

	start, end := current.StartDate, current.EndDate
	if patch.StartDate != nil {
		start = *patch.StartDate
	}
	if patch.EndDate != nil {
		end = *patch.EndDate
	}
	if !start.Before(end) {
		h.writeError(w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}

	updated, err := h.store.Update(r.Context(), code, patch)
	if err != nil {
		logger.Error("failed to update coupon", zap.Error(err), zap.String("code", code))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if updated == nil {
		h.writeError(w, http.StatusNotFound, "coupon not found")
		return
	}

	h.invalidate(r.Context(), logger, code)
	logger.Info("coupon updated", zap.String("code", updated.Code), zap.Bool("is_active", updated.IsActive))
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleRedeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.writeError(w, http.StatusBadRequest, validation.Message(err))
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger).With(
		zap.String("coupon_code", req.CouponCode),
		zap.String("order_id", req.OrderID),
	)

	redemption, err := h.redeemer.Redeem(r.Context(), req)
	if err != nil {
		var rej *pricing.Rejection
		switch {
		case errors.As(err, &rej) && rej.Reason == pricing.ReasonNotFound:
			h.writeJSON(w, http.StatusNotFound, rejectionBody(rej))
		case errors.As(err, &rej):
			logger.Info("coupon redemption refused", zap.String("reason", string(rej.Reason)))
			h.writeJSON(w, http.StatusConflict, rejectionBody(rej))
		case errors.Is(err, ErrOrderAlreadyRedeemed):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			logger.Error("failed to redeem coupon", zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	logger.Info("coupon redeemed", zap.String("redemption_id", redemption.ID))
	h.writeJSON(w, http.StatusOK, redemption)
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	logger := logging.WithTrace(r.Context(), h.logger)
	redemption, err := h.redeemer.Release(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, ErrRedemptionNotFound) {
			h.writeError(w, http.StatusNotFound, "redemption not found")
			return
		}
		logger.Error("failed to release redemption", zap.Error(err), zap.String("order_id", orderID))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Info("coupon redemption released", zap.String("order_id", orderID), zap.String("coupon_code", redemption.CouponCode))
	h.writeJSON(w, http.StatusOK, redemption)
}

func (h *Handler) invalidate(ctx context.Context, logger *zap.Logger, code string) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, code); err != nil {
		logger.Warn("failed to invalidate cached coupon", zap.Error(err), zap.String("code", code))
	}
}

func rejectionBody(rej *pricing.Rejection) map[string]string {
	return map[string]string{
		"error":   rej.Message,
		"reason":  string(rej.Reason),
		"message": rej.Message,
	}
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
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
