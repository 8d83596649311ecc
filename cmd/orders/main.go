package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/messaging"
	"github.com/joao-fontenele/storefront-pricing/internal/orders"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "orders", "8081", "postgres_url", "pricing_service_url")
	if err != nil {
		fmt.Fprintf(os.Stderr, "orders: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Config

	db, err := app.OpenDB(ctx, "orders")
	if err != nil {
		app.Logger.Fatal("failed to connect to database", zap.Error(err))
	}

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, domain.TopicOrderCreated)
		app.OnShutdown("kafka producer", func(context.Context) error { return producer.Close() })
		publisher = producer
	} else {
		app.Logger.Warn("KAFKA_BROKERS not set, order events are not published")
	}

	handler := orders.NewHandler(
		orders.NewOrderRepository(db),
		orders.NewPricingClient(cfg.PricingServiceURL, app.HTTPClient()),
		publisher,
		app.Logger,
	)

	app.Handle("GET /orders", handler.HandleList)
	app.Handle("POST /orders", handler.HandleCreate)
	app.Handle("GET /orders/{id}", handler.HandleGet)
	app.Handle("PATCH /orders/{id}/status", handler.HandleUpdateStatus)

	if err := app.Serve(ctx); err != nil {
		app.Logger.Fatal("orders service stopped with error", zap.Error(err))
	}
}
