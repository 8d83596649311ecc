package coupons

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
)

var (
	ErrCouponNotFound       = errors.New("coupon not found")
	ErrRedemptionNotFound   = errors.New("redemption not found")
	ErrOrderAlreadyRedeemed = errors.New("order already redeemed a different coupon")
)

type RedeemRequest struct {
	CouponCode string `json:"coupon_code" validate:"required"`
	CustomerID string `json:"customer_id"`
	OrderID    string `json:"order_id" validate:"required"`
}

// RedemptionStore owns the usage counters. Every increment happens under a
// row lock on the coupon so concurrent confirmations cannot overshoot a limit.
type RedemptionStore struct {
	db *sql.DB
}

func NewRedemptionStore(db *sql.DB) *RedemptionStore {
	return &RedemptionStore{db: db}
}

// Usage reads the global and per-customer redemption counts. An empty
// customerID is a guest and always has zero prior redemptions.
func (s *RedemptionStore) Usage(ctx context.Context, couponID, customerID string) (pricing.Usage, error) {
	var usage pricing.Usage

	err := s.db.QueryRowContext(ctx, `
		SELECT c.redemption_count,
			(SELECT COUNT(*) FROM coupon_redemptions r
			 WHERE r.coupon_id = c.id AND r.customer_id = $2 AND $2 <> '')
		FROM coupons c
		WHERE c.id = $1
	`, couponID, customerID).Scan(&usage.Global, &usage.PerCustomer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricing.Usage{}, ErrCouponNotFound
		}
		return pricing.Usage{}, err
	}

	return usage, nil
}

// Redeem records one use of the coupon for the order. Redeeming the same order
// twice returns the existing redemption without counting it again. A coupon
// outside its window, inactive or over a limit is reported as
// *pricing.Rejection.
func (s *RedemptionStore) Redeem(ctx context.Context, req RedeemRequest) (*domain.Redemption, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		couponID, code           string
		isActive                 bool
		startDate, endDate       time.Time
		usageLimit, usagePerUser sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, code, is_active, start_date, end_date, usage_limit, usage_per_user
		FROM coupons
		WHERE lower(code) = lower($1)
		FOR UPDATE
	`, req.CouponCode).Scan(&couponID, &code, &isActive, &startDate, &endDate, &usageLimit, &usagePerUser)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pricing.Reject(pricing.ReasonNotFound, "coupon %s does not exist", req.CouponCode)
		}
		return nil, err
	}

	existing := &domain.Redemption{}
	err = tx.QueryRowContext(ctx, `
		SELECT id, coupon_id, customer_id, order_id, redeemed_at
		FROM coupon_redemptions
		WHERE order_id = $1
	`, req.OrderID).Scan(&existing.ID, &existing.CouponID, &existing.CustomerID, &existing.OrderID, &existing.RedeemedAt)
	switch {
	case err == nil:
		if existing.CouponID != couponID {
			return nil, ErrOrderAlreadyRedeemed
		}
		existing.CouponCode = code
		return existing, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	// The coupon may have been deactivated or expired since the order was quoted.
	now := time.Now()
	if now.Before(startDate) || now.After(endDate) {
		return nil, pricing.Reject(pricing.ReasonExpired, "coupon %s is valid from %s to %s",
			code, startDate.UTC().Format(time.RFC3339), endDate.UTC().Format(time.RFC3339))
	}
	if !isActive {
		return nil, pricing.Reject(pricing.ReasonInactive, "coupon %s is not active", code)
	}

	if usagePerUser.Valid && req.CustomerID != "" {
		var used int64
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM coupon_redemptions
			WHERE coupon_id = $1 AND customer_id = $2
		`, couponID, req.CustomerID).Scan(&used)
		if err != nil {
			return nil, err
		}
		if used >= usagePerUser.Int64 {
			return nil, pricing.Reject(pricing.ReasonPerUserUsageExhausted,
				"coupon %s can be used at most %d times per customer", code, usagePerUser.Int64)
		}
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE coupons
		SET redemption_count = redemption_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit IS NULL OR redemption_count < usage_limit)
	`, couponID)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, pricing.Reject(pricing.ReasonGlobalUsageExhausted,
			"coupon %s has reached its usage limit of %d", code, usageLimit.Int64)
	}

	redemption := &domain.Redemption{
		ID:         uuid.New().String(),
		CouponID:   couponID,
		CouponCode: code,
		CustomerID: req.CustomerID,
		OrderID:    req.OrderID,
		RedeemedAt: time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (id, coupon_id, customer_id, order_id, redeemed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, redemption.ID, redemption.CouponID, redemption.CustomerID, redemption.OrderID, redemption.RedeemedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return redemption, nil
}

// Release undoes the redemption recorded for the order.
func (s *RedemptionStore) Release(ctx context.Context, orderID string) (*domain.Redemption, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	redemption := &domain.Redemption{}
	err = tx.QueryRowContext(ctx, `
		DELETE FROM coupon_redemptions
		WHERE order_id = $1
		RETURNING id, coupon_id, customer_id, order_id, redeemed_at
	`, orderID).Scan(&redemption.ID, &redemption.CouponID, &redemption.CustomerID, &redemption.OrderID, &redemption.RedeemedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE coupons
		SET redemption_count = redemption_count - 1, updated_at = NOW()
		WHERE id = $1 AND redemption_count > 0
		RETURNING code
	`, redemption.CouponID).Scan(&redemption.CouponCode)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return redemption, nil
}
