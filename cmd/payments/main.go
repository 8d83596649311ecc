package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/bootstrap"
	"github.com/joao-fontenele/storefront-pricing/internal/payments"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "payments", "8083")
	if err != nil {
		fmt.Fprintf(os.Stderr, "payments: %v\n", err)
		os.Exit(1)
	}

	handler := payments.NewHandler(app.Logger)
	app.Handle("POST /payments", handler.HandleInitiate)

	if err := app.Serve(ctx); err != nil {
		app.Logger.Fatal("payments service stopped with error", zap.Error(err))
	}
}
