package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/catalog"
	"github.com/joao-fontenele/storefront-pricing/internal/domain"
	"github.com/joao-fontenele/storefront-pricing/internal/messaging"
	"github.com/joao-fontenele/storefront-pricing/internal/worker"
)

const consumerGroup = "checkout-worker"

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "worker", "8085",
		"kafka_brokers", "catalog_service_url", "orders_service_url", "payments_service_url")
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Config

	httpClient := app.HTTPClient()
	handler, err := worker.NewCheckoutHandler(
		catalog.NewClient(cfg.CatalogServiceURL, httpClient),
		worker.NewOrdersClient(cfg.OrdersServiceURL, httpClient),
		worker.NewPaymentsClient(cfg.PaymentsServiceURL, httpClient),
		app.Logger,
	)
	if err != nil {
		app.Logger.Fatal("failed to create checkout handler", zap.Error(err))
	}

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, domain.TopicOrderCreated, consumerGroup, app.Logger)
	app.OnShutdown("kafka consumer", func(context.Context) error { return consumer.Close() })

	err = app.Serve(ctx, func(ctx context.Context) error {
		app.Logger.Info("starting checkout worker", zap.Strings("brokers", cfg.KafkaBrokers))
		return consumer.Consume(ctx, handler.Handle)
	})
	if err != nil {
		app.Logger.Fatal("checkout worker stopped with error", zap.Error(err))
	}
}
