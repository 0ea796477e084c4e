// Package app assembles the checkout services and the HTTP router from
// configuration and the shared infrastructure handles.
package app

import (
	"context"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/payment/gateway"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/store"
)

// Infra holds the handles the services are built on.
type Infra struct {
	Store     store.Store
	Redis     redis.UniversalClient
	Notifiers []events.Notifier
	Health    health.Checker
	Logger    zerolog.Logger
}

// Services is the wired domain layer shared by the API process and tests.
type Services struct {
	Validate   *validator.Validate
	Bus        *events.Bus
	Pricing    pricing.Pipeline
	Coupons    *coupon.Service
	Cart       *cart.Service
	Ledger     *checkout.Ledger
	Checkout   *checkout.Service
	Reconciler *payment.Reconciler
	Confirmer  *payment.Confirmer
	Providers  map[string]gateway.Provider
}

// NewServices wires the pricing, checkout and payment services.
func NewServices(cfg *config.Config, infra Infra) (*Services, error) {
	if infra.Store == nil {
		return nil, fmt.Errorf("app: store is required")
	}
	if infra.Redis == nil {
		return nil, fmt.Errorf("app: redis is required")
	}
	providers, active, err := Providers(cfg)
	if err != nil {
		return nil, err
	}

	v := common.NewValidator()
	bus := &events.Bus{Store: infra.Store, Notifiers: infra.Notifiers}
	pipeline := pricing.Pipeline{
		TaxBps:      cfg.PricingTaxRateBPS,
		TaxIncluded: cfg.PricingTaxIncluded,
		Shipping: pricing.ShippingSettings{
			FreeThreshold: cfg.ShippingFreeThreshold,
			FlatFee:       cfg.ShippingFlatFee,
		},
	}
	coupons := &coupon.Service{Q: infra.Store}
	cartSvc := &cart.Service{Q: infra.Store, Coupons: coupons, Pricing: pipeline}
	logger := infra.Logger
	ledger := &checkout.Ledger{Store: infra.Store, Events: bus, Logger: &logger}

	return &Services{
		Validate: v,
		Bus:      bus,
		Pricing:  pipeline,
		Coupons:  coupons,
		Cart:     cartSvc,
		Ledger:   ledger,
		Checkout: &checkout.Service{
			Cart:        cartSvc,
			Ledger:      ledger,
			Provider:    active,
			Validate:    v,
			Currency:    cfg.CurrencyCode,
			CallbackURL: cfg.PaymentCallbackURL,
			IntentTTL:   cfg.PaymentIntentTTL,
		},
		Reconciler: &payment.Reconciler{
			Store:  infra.Store,
			Ledger: ledger,
			Locker: &lock.Locker{
				R:            infra.Redis,
				RetryBackoff: cfg.LockRetryBackoff,
				MaxWait:      cfg.LockTTL,
			},
			LockTTL: cfg.LockTTL,
			Logger:  logger.With().Str("component", "reconciler").Logger(),
		},
		Confirmer: &payment.Confirmer{
			Store:    infra.Store,
			Cart:     cartSvc,
			Ledger:   ledger,
			Validate: v,
		},
		Providers: providers,
	}, nil
}

// Providers returns the callback verifiers keyed by route name and the
// provider used to open intents at checkout.
func Providers(cfg *config.Config) (map[string]gateway.Provider, gateway.Provider, error) {
	switch cfg.PaymentProvider {
	case "sandbox":
		sb := gateway.Sandbox{Secret: cfg.PaymentGatewaySecret, BaseURL: cfg.PaymentGatewayBaseURL}
		return map[string]gateway.Provider{sb.Name(): sb}, sb, nil
	case "", "gateway":
		if cfg.PaymentGatewayBaseURL == "" {
			return nil, nil, fmt.Errorf("app: PAYMENT_GATEWAY_BASE_URL is required for provider %q", "gateway")
		}
		gw := gateway.NewHTTPGateway("gateway", cfg.PaymentGatewayBaseURL, cfg.PaymentGatewaySecret, 10*time.Second)
		return map[string]gateway.Provider{gw.Name(): gw}, gw, nil
	default:
		return nil, nil, fmt.Errorf("app: unknown payment provider %q", cfg.PaymentProvider)
	}
}

// OpenRedis connects to redisURL with tracing, and metrics when enabled.
func OpenRedis(ctx context.Context, redisURL string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
