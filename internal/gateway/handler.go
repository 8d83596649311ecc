package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/logging"
)

type Handler struct {
	ordersProxy  *ServiceProxy
	catalogProxy *ServiceProxy
	pricingProxy *ServiceProxy
	logger       *zap.Logger
}

func NewHandler(ordersProxy, catalogProxy, pricingProxy *ServiceProxy, logger *zap.Logger) *Handler {
	return &Handler{
		ordersProxy:  ordersProxy,
		catalogProxy: catalogProxy,
		pricingProxy: pricingProxy,
		logger:       logger,
	}
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy, r.URL.Path)
}

// HandleCatalog exposes the catalog's /products tree under /catalog.
func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	path := "/products" + strings.TrimPrefix(r.URL.Path, "/catalog")
	h.proxyRequest(w, r, h.catalogProxy, path)
}

// HandlePricing forwards quotes and coupon administration unchanged.
func (h *Handler) HandlePricing(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.pricingProxy, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	logger := logging.WithTrace(r.Context(), h.logger).With(zap.String("method", r.Method), zap.String("path", path))

	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		logger.Error("failed to forward request", zap.Error(err))
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	logger.Info("request proxied", zap.Int("status", resp.StatusCode))

	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Error("failed to copy response body", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.Error("failed to encode error response", zap.Error(err))
	}
}
