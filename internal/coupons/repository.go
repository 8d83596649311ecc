package coupons

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

var ErrDuplicateCode = errors.New("coupon code already exists")

const couponColumns = `id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
	usage_limit, usage_per_user, redemption_count, start_date, end_date, is_active, created_at, updated_at`

// Patch holds the mutable fields of a coupon. Nil fields are left untouched.
type Patch struct {
	IsActive  *bool      `json:"is_active"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

type CouponRepository struct {
	db *sql.DB
}

func NewCouponRepository(db *sql.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, c *domain.Coupon) error {
	now := time.Now().UTC()
	c.ID = uuid.New().String()
	c.RedemptionCount = 0
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (id, code, discount_type, discount_value, min_order_amount, max_discount_amount,
			usage_limit, usage_per_user, redemption_count, start_date, end_date, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $12)
	`, c.ID, c.Code, c.DiscountType, c.DiscountValue, nullDecimal(c.MinOrderAmount), nullDecimal(c.MaxDiscountAmount),
		nullInt(c.UsageLimit), nullInt(c.UsagePerUser), c.StartDate, c.EndDate, c.IsActive, now)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	return err
}

// FindByCode matches the code case-insensitively. It returns nil, nil when no
// coupon has that code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		WHERE lower(code) = lower($1)
	`, code)

	c, err := scanCoupon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (r *CouponRepository) List(ctx context.Context, limit, offset int) ([]domain.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+couponColumns+`
		FROM coupons
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	coupons := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return coupons, nil
}

// Update applies the patch and returns the stored coupon, or nil, nil when
// the code is unknown.
func (r *CouponRepository) Update(ctx context.Context, code string, patch Patch) (*domain.Coupon, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coupons
		SET is_active = COALESCE($2, is_active),
			start_date = COALESCE($3, start_date),
			end_date = COALESCE($4, end_date),
			updated_at = NOW()
		WHERE lower(code) = lower($1)
	`, code, patch.IsActive, patch.StartDate, patch.EndDate)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		return nil, nil
	}

	return r.FindByCode(ctx, code)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (*domain.Coupon, error) {
	var (
		c                     domain.Coupon
		minOrder, maxDiscount decimal.NullDecimal
		usageLimit, perUser   sql.NullInt64
	)

	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &minOrder, &maxDiscount,
		&usageLimit, &perUser, &c.RedemptionCount, &c.StartDate, &c.EndDate, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if minOrder.Valid {
		c.MinOrderAmount = &minOrder.Decimal
	}
	if maxDiscount.Valid {
		c.MaxDiscountAmount = &maxDiscount.Decimal
	}
	if usageLimit.Valid {
		n := int(usageLimit.Int64)
		c.UsageLimit = &n
	}
	if perUser.Valid {
		n := int(perUser.Int64)
		c.UsagePerUser = &n
	}

	return &c, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
