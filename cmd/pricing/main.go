package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/catalog"
	"github.com/joao-fontenele/storefront-pricing/internal/coupons"
	"github.com/joao-fontenele/storefront-pricing/internal/pricing"
	"github.com/joao-fontenele/storefront-pricing/internal/quotes"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "pricing", "8084", "postgres_url", "catalog_service_url")
	if err != nil {
		fmt.Fprintf(os.Stderr, "pricing: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Config

	currency, err := pricing.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		app.Logger.Fatal("invalid default currency", zap.Error(err))
	}

	db, err := app.OpenDB(ctx, "pricing")
	if err != nil {
		app.Logger.Fatal("failed to connect to database", zap.Error(err))
	}

	repo := coupons.NewCouponRepository(db)
	redemptions := coupons.NewRedemptionStore(db)

	var (
		finder      quotes.CouponFinder = repo
		invalidator coupons.Invalidator
	)
	if cfg.RedisAddr != "" && cfg.CouponCacheTTL > 0 {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		app.OnShutdown("redis", func(context.Context) error { return client.Close() })

		if err := client.Ping(ctx).Err(); err != nil {
			app.Logger.Warn("redis unreachable, coupon lookups fall back to postgres", zap.Error(err))
		}

		cache := coupons.NewCachedFinder(repo, client, cfg.CouponCacheTTL, app.Logger)
		finder, invalidator = cache, cache
		app.Logger.Info("coupon cache enabled", zap.String("redis_addr", cfg.RedisAddr), zap.Duration("ttl", cfg.CouponCacheTTL))
	}

	prices := catalog.NewClient(cfg.CatalogServiceURL, app.HTTPClient())
	service, err := quotes.NewService(prices, finder, redemptions, currency)
	if err != nil {
		app.Logger.Fatal("failed to create quote service", zap.Error(err))
	}

	quoteHandler := quotes.NewHandler(service, app.Logger)
	couponHandler := coupons.NewHandler(repo, redemptions, invalidator, app.Logger)

	app.Handle("POST /quotes", quoteHandler.HandleQuote)
	app.Handle("GET /coupons", couponHandler.HandleList)
	app.Handle("POST /coupons", couponHandler.HandleCreate)
	app.Handle("GET /coupons/{code}", couponHandler.HandleGet)
	app.Handle("PATCH /coupons/{code}", couponHandler.HandleUpdate)
	app.Handle("POST /redemptions", couponHandler.HandleRedeem)
	app.Handle("DELETE /redemptions/{orderId}", couponHandler.HandleRelease)

	if err := app.Serve(ctx); err != nil {
		app.Logger.Fatal("pricing service stopped with error", zap.Error(err))
	}
}
