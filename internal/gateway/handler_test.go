package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func unusedProxy() *ServiceProxy {
	return NewServiceProxy("http://unused", http.DefaultClient)
}

func upstream(t *testing.T, wantMethod, wantPath string, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != wantMethod {
			t.Errorf("expected %s, got %s", wantMethod, r.Method)
		}
		if r.URL.Path != wantPath {
			t.Errorf("expected %s, got %s", wantPath, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_HandleOrders(t *testing.T) {
	t.Run("proxies GET /orders", func(t *testing.T) {
		srv := upstream(t, http.MethodGet, "/orders", http.StatusOK, `[{"id":"1"}]`)
		handler := NewHandler(NewServiceProxy(srv.URL, srv.Client()), unusedProxy(), unusedProxy(), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleOrders(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}
		if rec.Body.String() != `[{"id":"1"}]` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("proxies POST /orders with body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"customer_id":"123"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		handler := NewHandler(NewServiceProxy(srv.URL, srv.Client()), unusedProxy(), unusedProxy(), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleOrders(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"customer_id":"123"}`)))

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		handler := NewHandler(NewServiceProxy("http://localhost:99999", &http.Client{}), unusedProxy(), unusedProxy(), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleOrders(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleCatalog(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantPath string
	}{
		{name: "product list", path: "/catalog", wantPath: "/products"},
		{name: "single product", path: "/catalog/SKU-TEE", wantPath: "/products/SKU-TEE"},
		{name: "variant", path: "/catalog/SKU-TEE/variants/SKU-TEE-XL", wantPath: "/products/SKU-TEE/variants/SKU-TEE-XL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := upstream(t, http.MethodGet, tt.wantPath, http.StatusOK, `{}`)
			handler := NewHandler(unusedProxy(), NewServiceProxy(srv.URL, srv.Client()), unusedProxy(), zap.NewNop())

			rec := httptest.NewRecorder()
			handler.HandleCatalog(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rec.Code)
			}
		})
	}

	t.Run("preserves downstream error status", func(t *testing.T) {
		srv := upstream(t, http.MethodGet, "/products/unknown", http.StatusNotFound, `{"error":"product not found"}`)
		handler := NewHandler(unusedProxy(), NewServiceProxy(srv.URL, srv.Client()), unusedProxy(), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandleCatalog(rec, httptest.NewRequest(http.MethodGet, "/catalog/unknown", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestHandler_HandlePricing(t *testing.T) {
	t.Run("forwards quotes", func(t *testing.T) {
		srv := upstream(t, http.MethodPost, "/quotes", http.StatusUnprocessableEntity, `{"reason":"invalid_quantity"}`)
		handler := NewHandler(unusedProxy(), unusedProxy(), NewServiceProxy(srv.URL, srv.Client()), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandlePricing(rec, httptest.NewRequest(http.MethodPost, "/quotes", strings.NewReader(`{"lines":[]}`)))

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "invalid_quantity") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("keeps coupon list query", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/coupons" || r.URL.Query().Get("limit") != "10" {
				t.Errorf("unexpected upstream request %s", r.URL)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		handler := NewHandler(unusedProxy(), unusedProxy(), NewServiceProxy(srv.URL, srv.Client()), zap.NewNop())

		rec := httptest.NewRecorder()
		handler.HandlePricing(rec, httptest.NewRequest(http.MethodGet, "/coupons?limit=10", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
