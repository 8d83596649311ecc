// Package bootstrap holds the startup and shutdown sequence shared by every
// command: configuration, logging, telemetry, the HTTP server and signals.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-pricing/internal/config"
	"github.com/joao-fontenele/storefront-pricing/internal/logging"
	"github.com/joao-fontenele/storefront-pricing/internal/telemetry"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	Mux    *http.ServeMux

	closers []closer
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// New loads configuration, fails fast on missing required keys and installs
// tracing and metrics. /metrics and /healthz are registered on the mux.
func New(ctx context.Context, service, defaultPort string, required ...string) (*App, error) {
	cfg, err := config.Load(service, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Require(required...); err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: logging.New(cfg.Log, service),
		Mux:    http.NewServeMux(),
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.Telemetry, service)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	app.OnShutdown("tracer", shutdownTracer)

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(service, cfg.Telemetry.ServiceVersion)
	if err != nil {
		return nil, fmt.Errorf("init meter: %w", err)
	}
	app.OnShutdown("meter", shutdownMeter)

	app.Mux.Handle("GET /metrics", metricsHandler)
	app.Mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return app, nil
}

// Handle registers a route with the http.route span attribute.
func (a *App) Handle(pattern string, h http.HandlerFunc) {
	a.Mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
}

// OnShutdown registers fn to run at shutdown. Hooks run in reverse order.
func (a *App) OnShutdown(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

func (a *App) HTTPClient() *http.Client {
	return telemetry.NewHTTPClient(a.Config.HTTPTimeout)
}

// OpenDB connects to Postgres with the service schema as search_path and
// closes the pool at shutdown.
func (a *App) OpenDB(ctx context.Context, schema string) (*sql.DB, error) {
	db, err := telemetry.OpenDB(a.Config.PostgresURL, schema)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	a.OnShutdown("database", func(context.Context) error { return db.Close() })
	return db, nil
}

// Serve runs the HTTP server, plus any background tasks such as a Kafka
// consumer, until SIGINT or SIGTERM or until one of them fails. It then
// drains the server and runs the shutdown hooks.
func (a *App) Serve(ctx context.Context, background ...func(ctx context.Context) error) error {
	server := &http.Server{
		Addr:         ":" + a.Config.Port,
		Handler:      telemetry.Middleware(a.Mux, a.Config.Service),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return a.Run(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			a.Logger.Info("starting service", zap.String("port", a.Config.Port))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		for _, fn := range background {
			g.Go(func() error { return fn(gctx) })
		}

		return g.Wait()
	})
}

// Run calls fn with a context cancelled on SIGINT or SIGTERM and runs the
// shutdown hooks once fn returns.
func (a *App) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx)
	if runErr != nil && ctx.Err() != nil && errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	a.Logger.Info("shutting down")
	shutdownErr := a.shutdown()
	_ = a.Logger.Sync()

	return errors.Join(runErr, shutdownErr)
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Error("shutdown step failed", zap.String("step", c.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
