// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config is shared by the API, the worker and the tools. Field tags name the
// environment variable each value comes from.
type Config struct {
	AppEnv             string   `koanf:"APP_ENV"`
	Port               string   `koanf:"PORT"`
	DatabaseURL        string   `koanf:"DATABASE_URL"`
	RedisURL           string   `koanf:"REDIS_URL"`
	JWTSecret          string   `koanf:"JWT_SECRET"`
	JWTIssuer          string   `koanf:"JWT_ISSUER"`
	JWTAudience        string   `koanf:"JWT_AUDIENCE"`
	CORSAllowedOrigins []string `koanf:"CORS_ALLOWED_ORIGINS"`
	MigrationsPath     string   `koanf:"MIGRATIONS_PATH"`
	AutoMigrate        bool     `koanf:"AUTO_MIGRATE"`
	MaxBodyBytes       int64    `koanf:"SECURITY_MAX_BODY_BYTES"`
	SecurityHeaders    bool     `koanf:"SECURITY_HEADERS_ENABLED"`
	EnableHSTS         bool     `koanf:"SECURITY_HSTS_ENABLED"`

	PricingTaxRateBPS     int    `koanf:"PRICING_TAX_RATE_BPS"`
	PricingTaxIncluded    bool   `koanf:"PRICING_TAX_INCLUDED"`
	ShippingFreeThreshold int64  `koanf:"SHIPPING_FREE_THRESHOLD"`
	ShippingFlatFee       int64  `koanf:"SHIPPING_FLAT_FEE"`
	CurrencyCode          string `koanf:"CURRENCY_CODE"`

	PaymentProvider       string        `koanf:"PAYMENT_PROVIDER"`
	PaymentGatewayBaseURL string        `koanf:"PAYMENT_GATEWAY_BASE_URL"`
	PaymentGatewaySecret  string        `koanf:"PAYMENT_GATEWAY_SECRET"`
	PaymentCallbackURL    string        `koanf:"PAYMENT_CALLBACK_BASE_URL"`
	PaymentIntentTTL      time.Duration `koanf:"PAYMENT_INTENT_TTL"`

	WebhookReplayTTL  time.Duration `koanf:"WEBHOOK_REPLAY_TTL"`
	IdempotencyTTL    time.Duration `koanf:"IDEMPOTENCY_TTL"`
	LockTTL           time.Duration `koanf:"LOCK_TTL"`
	LockRetryBackoff  time.Duration `koanf:"LOCK_RETRY_BACKOFF"`
	RateLimitWebhook  string        `koanf:"RATE_LIMIT_WEBHOOK"`
	RateLimitCheckout string        `koanf:"RATE_LIMIT_CHECKOUT"`

	KafkaBrokers []string `koanf:"KAFKA_BROKERS"`
	KafkaTopic   string   `koanf:"KAFKA_TOPIC"`
	QueueName    string   `koanf:"QUEUE_NAME"`

	LogFormat         string  `koanf:"OBS_LOG_FORMAT"`
	LogLevel          string  `koanf:"OBS_LOG_LEVEL"`
	MetricsNamespace  string  `koanf:"OBS_METRICS_NAMESPACE"`
	MetricsEnabled    bool    `koanf:"OBS_ENABLE_PROMETHEUS"`
	TracingEnabled    bool    `koanf:"OBS_ENABLE_TRACING"`
	TracingEndpoint   string  `koanf:"OBS_OTLP_ENDPOINT"`
	TracingSampling   float64 `koanf:"OBS_TRACING_SAMPLING_RATIO"`
	WorkerConcurrency int     `koanf:"WORKER_CONCURRENCY"`
}

// defaults apply to variables that are unset or blank.
var defaults = map[string]any{
	"APP_ENV":                  "development",
	"PORT":                     "8080",
	"MIGRATIONS_PATH":          "file://migrations",
	"AUTO_MIGRATE":             false,
	"SECURITY_MAX_BODY_BYTES":  1 << 20,
	"SECURITY_HEADERS_ENABLED": true,
	"SECURITY_HSTS_ENABLED":    false,

	"PRICING_TAX_RATE_BPS":    0,
	"PRICING_TAX_INCLUDED":    true,
	"SHIPPING_FREE_THRESHOLD": 0,
	"SHIPPING_FLAT_FEE":       0,
	"CURRENCY_CODE":           "IDR",

	"PAYMENT_PROVIDER":   "gateway",
	"PAYMENT_INTENT_TTL": "30m",

	"WEBHOOK_REPLAY_TTL":  "24h",
	"IDEMPOTENCY_TTL":     "10m",
	"LOCK_TTL":            "10s",
	"LOCK_RETRY_BACKOFF":  "50ms",
	"RATE_LIMIT_WEBHOOK":  "120-M",
	"RATE_LIMIT_CHECKOUT": "20-M",

	"KAFKA_TOPIC": "toko.checkout.events",
	"QUEUE_NAME":  "checkout",

	"OBS_LOG_FORMAT":             "json",
	"OBS_LOG_LEVEL":              "info",
	"OBS_METRICS_NAMESPACE":      "toko",
	"OBS_ENABLE_PROMETHEUS":      true,
	"OBS_ENABLE_TRACING":         false,
	"OBS_TRACING_SAMPLING_RATIO": 1.0,
	"WORKER_CONCURRENCY":         5,
}

// Load reads the environment, after an optional .env file, and validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	for key, value := range defaults {
		if strings.TrimSpace(k.String(key)) == "" {
			if err := k.Set(key, value); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName: "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           &cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.CurrencyCode = strings.ToUpper(strings.TrimSpace(c.CurrencyCode))
	c.PaymentProvider = strings.ToLower(strings.TrimSpace(c.PaymentProvider))
	c.PaymentGatewayBaseURL = strings.TrimRight(strings.TrimSpace(c.PaymentGatewayBaseURL), "/")
	c.CORSAllowedOrigins = compact(c.CORSAllowedOrigins)
	c.KafkaBrokers = compact(c.KafkaBrokers)
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("DATABASE_URL is required")
	case c.RedisURL == "":
		return errors.New("REDIS_URL is required")
	case c.JWTSecret == "":
		return errors.New("JWT_SECRET is required")
	case c.PricingTaxRateBPS < 0 || c.PricingTaxRateBPS > 10000:
		return fmt.Errorf("PRICING_TAX_RATE_BPS out of range: %d", c.PricingTaxRateBPS)
	case c.ShippingFreeThreshold < 0 || c.ShippingFlatFee < 0:
		return errors.New("shipping settings must not be negative")
	case len(c.CurrencyCode) != 3:
		return fmt.Errorf("CURRENCY_CODE must be an ISO 4217 code: %q", c.CurrencyCode)
	}
	return nil
}

// HTTPAddr is the listen address derived from Port.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// LoadForTests runs Load with env applied on top of the process environment
// and restores the previous values afterwards. An empty value unsets the key.
func LoadForTests(env map[string]string) (*Config, error) {
	restore := make(map[string]*string, len(env))
	for key, value := range env {
		if prev, ok := os.LookupEnv(key); ok {
			restore[key] = &prev
		} else {
			restore[key] = nil
		}
		if value == "" {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, value)
		}
	}
	defer func() {
		for key, prev := range restore {
			if prev == nil {
				_ = os.Unsetenv(key)
			} else {
				_ = os.Setenv(key, *prev)
			}
		}
	}()
	return Load()
}
