package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/catalog"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "catalog", "8082", "postgres_url")
	if err != nil {
		fmt.Fprintf(os.Stderr, "catalog: %v\n", err)
		os.Exit(1)
	}

	db, err := app.OpenDB(ctx, "catalog")
	if err != nil {
		app.Logger.Fatal("failed to connect to database", zap.Error(err))
	}

	handler := catalog.NewHandler(catalog.NewCatalogRepository(db), app.Logger)

	app.Handle("GET /products", handler.HandleListProducts)
	app.Handle("GET /products/{productId}", handler.HandleGetProduct)
	app.Handle("GET /products/{productId}/variants/{variantId}", handler.HandleGetVariant)
	app.Handle("GET /products/{productId}/stock", handler.HandleGetStock)
	app.Handle("POST /products/{productId}/reserve", handler.HandleReserve)
	app.Handle("POST /products/{productId}/release", handler.HandleRelease)
	app.Handle("POST /prices/lookup", handler.HandleLookupPrices)

	if err := app.Serve(ctx); err != nil {
		app.Logger.Fatal("catalog service stopped with error", zap.Error(err))
	}
}
