package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("pricing", "8084")
	require.NoError(t, err)

	assert.Equal(t, "pricing", cfg.Service)
	assert.Equal(t, "8084", cfg.Port)
	assert.Equal(t, "BDT", cfg.DefaultCurrency)
	assert.Equal(t, 30*time.Second, cfg.CouponCacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9000")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("DEFAULT_CURRENCY", "usd")
	t.Setenv("COUPON_CACHE_TTL", "2m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	cfg, err := Load("orders", "8081")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, 2*time.Minute, cfg.CouponCacheTTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "collector:4317", cfg.Telemetry.Endpoint)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad currency", "DEFAULT_CURRENCY", "TAKA"},
		{"bad log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(tt.key, tt.val)

			_, err := Load("pricing", "8084")
			assert.Error(t, err)
		})
	}
}

func TestConfig_Require(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POSTGRES_URL", "postgres://localhost/storefront")

	cfg, err := Load("pricing", "8084")
	require.NoError(t, err)

	assert.NoError(t, cfg.Require("postgres_url"))

	err = cfg.Require("postgres_url", "redis_addr", "catalog_service_url")
	require.Error(t, err)
	assert.Equal(t, "missing required configuration: REDIS_ADDR, CATALOG_SERVICE_URL", err.Error())
}
