package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/joao-fontenele/storefront-pricing/internal/config"
)

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		name   string
		dsn    string
		schema string
		want   string
	}{
		{
			name:   "url",
			dsn:    "postgres://u:p@db:5432/shop?sslmode=disable",
			schema: "pricing",
			want:   "postgres://u:p@db:5432/shop?search_path=pricing&sslmode=disable",
		},
		{
			name:   "key value",
			dsn:    "host=db user=u dbname=shop",
			schema: "orders",
			want:   "host=db user=u dbname=shop search_path=orders",
		},
		{
			name: "no schema",
			dsn:  "postgres://db/shop",
			want: "postgres://db/shop",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WithSearchPath(tt.dsn, tt.schema))
		})
	}
}

func TestInitTracerProvider_Disabled(t *testing.T) {
	shutdown, err := InitTracerProvider(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestWithHTTPRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/{productId}", WithHTTPRoute(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	req := httptest.NewRequest(http.MethodGet, "/products/SKU-TEE", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	span.End()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes(), semconv.HTTPRoute("GET /products/{productId}"))
}
