package coupons

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
)

type memoryStore struct {
	coupons map[string]*domain.Coupon
	created []*domain.Coupon
	patches []Patch
	limit   int
	offset  int
}

func newMemoryStore(coupons ...*domain.Coupon) *memoryStore {
	s := &memoryStore{coupons: map[string]*domain.Coupon{}}
	for _, c := range coupons {
		s.coupons[strings.ToLower(c.Code)] = c
	}
	return s
}

func (s *memoryStore) Create(_ context.Context, c *domain.Coupon) error {
	if _, ok := s.coupons[strings.ToLower(c.Code)]; ok {
		return ErrDuplicateCode
	}
	c.ID = "new-id"
	s.coupons[strings.ToLower(c.Code)] = c
	s.created = append(s.created, c)
	return nil
}

func (s *memoryStore) FindByCode(_ context.Context, code string) (*domain.Coupon, error) {
	return s.coupons[strings.ToLower(code)], nil
}

func (s *memoryStore) List(_ context.Context, limit, offset int) ([]domain.Coupon, error) {
	s.limit, s.offset = limit, offset
	out := []domain.Coupon{}
	for _, c := range s.coupons {
		out = append(out, *c)
	}
	return out, nil
}

func (s *memoryStore) Update(_ context.Context, code string, patch Patch) (*domain.Coupon, error) {
	c, ok := s.coupons[strings.ToLower(code)]
	if !ok {
		return nil, nil
	}
	s.patches = append(s.patches, patch)
	if patch.IsActive != nil {
		c.IsActive = *patch.IsActive
	}
	return c, nil
}

type stubRedeemer struct {
	redeemErr  error
	releaseErr error
	requests   []RedeemRequest
}

func (s *stubRedeemer) Redeem(_ context.Context, req RedeemRequest) (*domain.Redemption, error) {
	s.requests = append(s.requests, req)
	if s.redeemErr != nil {
		return nil, s.redeemErr
	}
	return &domain.Redemption{ID: "r-1", CouponCode: "SAVE10", OrderID: req.OrderID, CustomerID: req.CustomerID}, nil
}

func (s *stubRedeemer) Release(_ context.Context, orderID string) (*domain.Redemption, error) {
	if s.releaseErr != nil {
		return nil, s.releaseErr
	}
	return &domain.Redemption{ID: "r-1", CouponCode: "SAVE10", OrderID: orderID}, nil
}

type recordingInvalidator struct {
	codes []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, code string) error {
	r.codes = append(r.codes, code)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandler_HandleCreate(t *testing.T) {
	valid := `{"code":" SAVE10 ","discount_type":"PERCENTAGE","discount_value":"10","max_discount_amount":"500",
		"start_date":"2026-01-01T00:00:00Z","end_date":"2026-12-31T00:00:00Z"}`

	t.Run("creates active coupon", func(t *testing.T) {
		store := newMemoryStore()
		cache := &recordingInvalidator{}
		h := NewHandler(store, &stubRedeemer{}, cache, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/coupons", strings.NewReader(valid)))

		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		require.Len(t, store.created, 1)
		assert.Equal(t, "SAVE10", store.created[0].Code)
		assert.True(t, store.created[0].IsActive)
		assert.Equal(t, []string{"SAVE10"}, cache.codes)
	})

	t.Run("duplicate code", func(t *testing.T) {
		store := newMemoryStore(&domain.Coupon{Code: "save10"})
		h := NewHandler(store, &stubRedeemer{}, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/coupons", strings.NewReader(valid)))

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	invalid := []struct {
		name string
		body string
		want string
	}{
		{"missing code", `{"discount_type":"PERCENTAGE","discount_value":"10","start_date":"2026-01-01T00:00:00Z","end_date":"2026-02-01T00:00:00Z"}`, "code is required"},
		{"unknown type", `{"code":"X","discount_type":"BOGO","discount_value":"10","start_date":"2026-01-01T00:00:00Z","end_date":"2026-02-01T00:00:00Z"}`, "discount_type must be one of [PERCENTAGE FIXED_AMOUNT]"},
		{"window reversed", `{"code":"X","discount_type":"PERCENTAGE","discount_value":"10","start_date":"2026-02-01T00:00:00Z","end_date":"2026-01-01T00:00:00Z"}`, "end_date must be after start_date"},
		{"zero value", `{"code":"X","discount_type":"FIXED_AMOUNT","discount_value":"0","start_date":"2026-01-01T00:00:00Z","end_date":"2026-02-01T00:00:00Z"}`, "discount_value must be greater than 0"},
		{"percentage above 100", `{"code":"X","discount_type":"PERCENTAGE","discount_value":"150","start_date":"2026-01-01T00:00:00Z","end_date":"2026-02-01T00:00:00Z"}`, "discount_value must be at most 100 for percentage coupons"},
		{"zero usage limit", `{"code":"X","discount_type":"PERCENTAGE","discount_value":"5","usage_limit":0,"start_date":"2026-01-01T00:00:00Z","end_date":"2026-02-01T00:00:00Z"}`, "usage_limit must be at least 1"},
		{"malformed json", `{`, "invalid request body"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(newMemoryStore(), &stubRedeemer{}, nil, zap.NewNop())

			rec := httptest.NewRecorder()
			h.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/coupons", strings.NewReader(tt.body)))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, decodeBody(t, rec)["error"])
		})
	}
}

func TestHandler_HandleGetAndList(t *testing.T) {
	store := newMemoryStore(&domain.Coupon{ID: "c-1", Code: "SAVE10"})
	h := NewHandler(store, &stubRedeemer{}, nil, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /coupons", h.HandleList)
	mux.HandleFunc("GET /coupons/{code}", h.HandleGet)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coupons/save10", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-1", decodeBody(t, rec)["id"])

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coupons/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coupons?limit=10&offset=20", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.limit)
	assert.Equal(t, 20, store.offset)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/coupons?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_HandleUpdate(t *testing.T) {
	coupon := &domain.Coupon{ID: "c-1", Code: "SAVE10", StartDate: start, EndDate: end, IsActive: true}
	store := newMemoryStore(coupon)
	cache := &recordingInvalidator{}
	h := NewHandler(store, &stubRedeemer{}, cache, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /coupons/{code}", h.HandleUpdate)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/coupons/SAVE10", strings.NewReader(`{"is_active":false}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, coupon.IsActive)
	assert.Equal(t, []string{"SAVE10"}, cache.codes)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/coupons/SAVE10", strings.NewReader(`{"end_date":"2025-01-01T00:00:00Z"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.patches, 1)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/coupons/NOPE", strings.NewReader(`{"is_active":true}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_HandleRedeem(t *testing.T) {
	body := `{"coupon_code":"SAVE10","customer_id":"cust-1","order_id":"order-1"}`

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantReason string
	}{
		{"redeemed", nil, http.StatusOK, ""},
		{"global exhausted", pricing.Reject(pricing.ReasonGlobalUsageExhausted, "limit"), http.StatusConflict, "global_usage_exhausted"},
		{"per user exhausted", pricing.Reject(pricing.ReasonPerUserUsageExhausted, "limit"), http.StatusConflict, "per_user_usage_exhausted"},
		{"unknown coupon", pricing.Reject(pricing.ReasonNotFound, "nope"), http.StatusNotFound, "not_found"},
		{"order used another coupon", ErrOrderAlreadyRedeemed, http.StatusConflict, ""},
		{"store failure", assert.AnError, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redeemer := &stubRedeemer{redeemErr: tt.err}
			h := NewHandler(newMemoryStore(), redeemer, nil, zap.NewNop())

			rec := httptest.NewRecorder()
			h.HandleRedeem(rec, httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(body)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantReason != "" {
				assert.Equal(t, tt.wantReason, decodeBody(t, rec)["reason"])
			}
		})
	}

	t.Run("order id required", func(t *testing.T) {
		redeemer := &stubRedeemer{}
		h := NewHandler(newMemoryStore(), redeemer, nil, zap.NewNop())

		rec := httptest.NewRecorder()
		h.HandleRedeem(rec, httptest.NewRequest(http.MethodPost, "/redemptions", strings.NewReader(`{"coupon_code":"SAVE10"}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "order_id is required", decodeBody(t, rec)["error"])
		assert.Empty(t, redeemer.requests)
	})
}

func TestHandler_HandleRelease(t *testing.T) {
	mux := func(redeemer *stubRedeemer) *http.ServeMux {
		h := NewHandler(newMemoryStore(), redeemer, nil, zap.NewNop())
		m := http.NewServeMux()
		m.HandleFunc("DELETE /redemptions/{orderId}", h.HandleRelease)
		return m
	}

	rec := httptest.NewRecorder()
	mux(&stubRedeemer{}).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/redemptions/order-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-1", decodeBody(t, rec)["order_id"])

	rec = httptest.NewRecorder()
	mux(&stubRedeemer{releaseErr: ErrRedemptionNotFound}).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/redemptions/order-2", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
