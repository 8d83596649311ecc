package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is shared by every command; each service reads the subset it needs.
type Config struct {
	Service string
	Port    string

	PostgresURL  string
	KafkaBrokers []string
	RedisAddr    string

	CatalogServiceURL  string
	PricingServiceURL  string
	OrdersServiceURL   string
	PaymentsServiceURL string

	DefaultCurrency string
	CouponCacheTTL  time.Duration
	HTTPTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log       LogConfig
	Telemetry TelemetryConfig

	v *viper.Viper
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

type TelemetryConfig struct {
	Enabled        bool
	Endpoint       string
	ServiceVersion string
}

// Load reads configuration with the following priority (highest first):
// environment variables, an optional config.yaml, built-in defaults.
func Load(service, defaultPort string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, defaultPort)

	cfg := &Config{
		Service: service,
		Port:    v.GetString("port"),

		PostgresURL:  v.GetString("postgres_url"),
		KafkaBrokers: splitList(v.GetString("kafka_brokers")),
		RedisAddr:    v.GetString("redis_addr"),

		CatalogServiceURL:  v.GetString("catalog_service_url"),
		PricingServiceURL:  v.GetString("pricing_service_url"),
		OrdersServiceURL:   v.GetString("orders_service_url"),
		PaymentsServiceURL: v.GetString("payments_service_url"),

		DefaultCurrency: strings.ToUpper(v.GetString("default_currency")),
		CouponCacheTTL:  v.GetDuration("coupon_cache_ttl"),
		HTTPTimeout:     v.GetDuration("http_timeout"),
		ShutdownTimeout: v.GetDuration("shutdown_timeout"),

		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Telemetry: TelemetryConfig{
			Enabled:        v.GetBool("otel.enabled"),
			Endpoint:       v.GetString("otel.exporter.otlp.endpoint"),
			ServiceVersion: v.GetString("service_version"),
		},

		v: v,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, defaultPort string) {
	v.SetDefault("port", defaultPort)
	v.SetDefault("default_currency", "BDT")
	v.SetDefault("coupon_cache_ttl", 30*time.Second)
	v.SetDefault("http_timeout", 10*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("otel.enabled", true)
	v.SetDefault("otel.exporter.otlp.endpoint", "localhost:4317")
	v.SetDefault("service_version", "0.1.0")
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("port must not be empty")
	}
	if len(c.DefaultCurrency) != 3 {
		return fmt.Errorf("default_currency must be a 3-letter ISO code, got %q", c.DefaultCurrency)
	}
	if c.CouponCacheTTL < 0 {
		return fmt.Errorf("coupon_cache_ttl must not be negative, got %s", c.CouponCacheTTL)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// Require fails when any of the given keys resolved to an empty value.
// Keys use the viper form, e.g. "postgres_url".
func (c *Config) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(c.v.GetString(key)) == "" {
			missing = append(missing, envName(key))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
