package coupons

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
)

var redemptionColumns = []string{"id", "coupon_id", "customer_id", "order_id", "redeemed_at"}

var lockedCouponColumns = []string{"id", "code", "is_active", "start_date", "end_date", "usage_limit", "usage_per_user"}

func expectLockedCoupon(mock sqlmock.Sqlmock, usageLimit, perUser any) {
	expectLockedCouponState(mock, true, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), usageLimit, perUser)
}

func expectLockedCouponState(mock sqlmock.Sqlmock, active bool, start, end time.Time, usageLimit, perUser any) {
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, code, is_active, start_date, end_date, usage_limit, usage_per_user FROM coupons WHERE lower\(code\) = lower\(\$1\) FOR UPDATE`).
		WithArgs("save10").
		WillReturnRows(sqlmock.NewRows(lockedCouponColumns).
			AddRow("c-1", "SAVE10", active, start, end, usageLimit, perUser))
}

func expectNoExistingRedemption(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`FROM coupon_redemptions WHERE order_id = \$1`).
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows(redemptionColumns))
}

func TestRedemptionStore_Redeem(t *testing.T) {
	req := RedeemRequest{CouponCode: "save10", CustomerID: "cust-1", OrderID: "order-1"}

	t.Run("increments and records", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCoupon(mock, int64(5), int64(2))
		expectNoExistingRedemption(mock)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM coupon_redemptions WHERE coupon_id = \$1 AND customer_id = \$2`).
			WithArgs("c-1", "cust-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectExec(`UPDATE coupons SET redemption_count = redemption_count \+ 1`).
			WithArgs("c-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO coupon_redemptions`).
			WithArgs(sqlmock.AnyArg(), "c-1", "cust-1", "order-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		redemption, err := store.Redeem(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", redemption.CouponCode)
		assert.Equal(t, "order-1", redemption.OrderID)
		assert.NotEmpty(t, redemption.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("global limit reached", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCoupon(mock, int64(5), nil)
		expectNoExistingRedemption(mock)
		mock.ExpectExec(`UPDATE coupons SET redemption_count = redemption_count \+ 1`).
			WithArgs("c-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.True(t, pricing.IsReason(err, pricing.ReasonGlobalUsageExhausted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("per customer limit reached", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCoupon(mock, nil, int64(1))
		expectNoExistingRedemption(mock)
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM coupon_redemptions`).
			WithArgs("c-1", "cust-1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.True(t, pricing.IsReason(err, pricing.ReasonPerUserUsageExhausted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("guest skips per customer check", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCoupon(mock, nil, int64(1))
		expectNoExistingRedemption(mock)
		mock.ExpectExec(`UPDATE coupons SET redemption_count = redemption_count \+ 1`).
			WithArgs("c-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO coupon_redemptions`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		guest := req
		guest.CustomerID = ""
		_, err := store.Redeem(context.Background(), guest)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivated since quote", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCouponState(mock, false, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), nil, nil)
		expectNoExistingRedemption(mock)
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.True(t, pricing.IsReason(err, pricing.ReasonInactive))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("window closed since quote", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCouponState(mock, true, time.Now().Add(-48*time.Hour), time.Now().Add(-time.Minute), nil, nil)
		expectNoExistingRedemption(mock)
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.True(t, pricing.IsReason(err, pricing.ReasonExpired))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing redemption survives deactivation", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCouponState(mock, false, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), nil, nil)
		mock.ExpectQuery(`FROM coupon_redemptions WHERE order_id = \$1`).
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows(redemptionColumns).
				AddRow("r-1", "c-1", "cust-1", "order-1", time.Now()))
		mock.ExpectCommit()

		redemption, err := store.Redeem(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "r-1", redemption.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("same order twice is idempotent", func(t *testing.T) {
		_, store, mock := newMock(t)
		redeemedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		expectLockedCoupon(mock, int64(1), nil)
		mock.ExpectQuery(`FROM coupon_redemptions WHERE order_id = \$1`).
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows(redemptionColumns).
				AddRow("r-1", "c-1", "cust-1", "order-1", redeemedAt))
		mock.ExpectCommit()

		redemption, err := store.Redeem(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "r-1", redemption.ID)
		assert.Equal(t, redeemedAt, redemption.RedeemedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("order already used another coupon", func(t *testing.T) {
		_, store, mock := newMock(t)
		expectLockedCoupon(mock, nil, nil)
		mock.ExpectQuery(`FROM coupon_redemptions WHERE order_id = \$1`).
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows(redemptionColumns).
				AddRow("r-9", "c-other", "cust-1", "order-1", time.Now()))
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.ErrorIs(t, err, ErrOrderAlreadyRedeemed)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		_, store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs("save10").
			WillReturnRows(sqlmock.NewRows(lockedCouponColumns))
		mock.ExpectRollback()

		_, err := store.Redeem(context.Background(), req)
		assert.True(t, pricing.IsReason(err, pricing.ReasonNotFound))
	})
}

func TestRedemptionStore_Release(t *testing.T) {
	t.Run("deletes and decrements", func(t *testing.T) {
		_, store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`DELETE FROM coupon_redemptions WHERE order_id = \$1 RETURNING`).
			WithArgs("order-1").
			WillReturnRows(sqlmock.NewRows(redemptionColumns).
				AddRow("r-1", "c-1", "cust-1", "order-1", time.Now()))
		mock.ExpectQuery(`UPDATE coupons SET redemption_count = redemption_count - 1`).
			WithArgs("c-1").
			WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("SAVE10"))
		mock.ExpectCommit()

		redemption, err := store.Release(context.Background(), "order-1")
		require.NoError(t, err)
		assert.Equal(t, "SAVE10", redemption.CouponCode)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nothing to release", func(t *testing.T) {
		_, store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`DELETE FROM coupon_redemptions`).
			WithArgs("order-404").
			WillReturnRows(sqlmock.NewRows(redemptionColumns))
		mock.ExpectRollback()

		_, err := store.Release(context.Background(), "order-404")
		assert.ErrorIs(t, err, ErrRedemptionNotFound)
	})
}

func TestRedemptionStore_Usage(t *testing.T) {
	_, store, mock := newMock(t)
	mock.ExpectQuery(`SELECT c.redemption_count`).
		WithArgs("c-1", "cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"redemption_count", "count"}).AddRow(int64(7), int64(2)))

	usage, err := store.Usage(context.Background(), "c-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, pricing.Usage{Global: 7, PerCustomer: 2}, usage)

	mock.ExpectQuery(`SELECT c.redemption_count`).
		WithArgs("gone", "").
		WillReturnRows(sqlmock.NewRows([]string{"redemption_count", "count"}))

	_, err = store.Usage(context.Background(), "gone", "")
	assert.ErrorIs(t, err, ErrCouponNotFound)
}
