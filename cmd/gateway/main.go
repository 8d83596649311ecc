package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/gateway"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "gateway", "8080",
		"orders_service_url", "catalog_service_url", "pricing_service_url")
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Config

	httpClient := app.HTTPClient()
	handler := gateway.NewHandler(
		gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient),
		gateway.NewServiceProxy(cfg.CatalogServiceURL, httpClient),
		gateway.NewServiceProxy(cfg.PricingServiceURL, httpClient),
		app.Logger,
	)

	app.Handle("GET /orders", handler.HandleOrders)
	app.Handle("POST /orders", handler.HandleOrders)
	app.Handle("GET /orders/{id}", handler.HandleOrders)
	app.Handle("PATCH /orders/{id}/status", handler.HandleOrders)

	app.Handle("GET /catalog", handler.HandleCatalog)
	app.Handle("GET /catalog/{productId}", handler.HandleCatalog)
	app.Handle("GET /catalog/{productId}/variants/{variantId}", handler.HandleCatalog)
	app.Handle("GET /catalog/{productId}/stock", handler.HandleCatalog)

	app.Handle("POST /quotes", handler.HandlePricing)
	app.Handle("GET /coupons", handler.HandlePricing)
	app.Handle("POST /coupons", handler.HandlePricing)
	app.Handle("GET /coupons/{code}", handler.HandlePricing)
	app.Handle("PATCH /coupons/{code}", handler.HandlePricing)

	if err := app.Serve(ctx); err != nil {
		app.Logger.Fatal("gateway stopped with error", zap.Error(err))
	}
}
