package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/ratelimit"
	"github.com/noah-isme/toko-checkout/internal/security"
)

// RouterOptions toggles the optional observability middleware.
type RouterOptions struct {
	Tracing     bool
	HTTPMetrics *obs.HTTPMetrics
}

// NewRouter mounts the public API on a chi router.
func NewRouter(cfg *config.Config, infra Infra, svc *Services, verifier *auth.Verifier, opts RouterOptions) (http.Handler, error) {
	limiterStore, err := ratelimit.NewFixedWindow(infra.Redis, "rl")
	if err != nil {
		return nil, err
	}
	checkoutRate, err := ratelimit.ConfigFromRate(cfg.RateLimitCheckout, "checkout", ratelimit.ByUserOrIP)
	if err != nil {
		return nil, err
	}
	webhookRate, err := ratelimit.ConfigFromRate(cfg.RateLimitWebhook, "webhook", ratelimit.ByIP)
	if err != nil {
		return nil, err
	}
	onLimitErr := func(err error) { infra.Logger.Warn().Err(err).Msg("rate limiter unavailable") }
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.SlidingWindow{Client: infra.Redis, Prefix: "rl:sw:"},
		Config:  checkoutRate,
		OnError: onLimitErr,
	}.Middleware
	webhookLimit := ratelimit.Handler{Limiter: limiterStore, Config: webhookRate, OnError: onLimitErr}.Middleware

	authn := auth.Middleware{Verifier: verifier}
	idem := common.Idem{R: infra.Redis, TTL: cfg.IdempotencyTTL}

	cartHandler := &cart.Handler{Svc: svc.Cart, Currency: cfg.CurrencyCode}
	checkoutHandler := &checkout.Handler{Svc: svc.Checkout}
	orderHandler := &order.Handler{Q: infra.Store}
	paymentHandler := &payment.Handler{Confirmer: svc.Confirmer}
	webhook := payment.Webhook{
		Reconciler: svc.Reconciler,
		Providers:  svc.Providers,
		Replay:     infra.Redis,
		ReplayTTL:  cfg.WebhookReplayTTL,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: infra.Logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.EnableHSTS, HSTSMaxAge: 31536000}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader},
		MaxAge:         300,
	}))
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

	if opts.HTTPMetrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}
	if infra.Health != nil {
		hh := health.Handler{Checker: infra.Health}
		r.Get("/health/live", hh.Live)
		r.Get("/health/ready", hh.Ready)
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.With(webhookLimit).Post("/payments/callback/{provider}", webhook.Handle)

		v.Group(func(p chi.Router) {
			p.Use(authn.RequireAuth)
			p.Get("/cart/quote", cartHandler.Quote)
			p.Get("/orders/{orderId}", orderHandler.Get)
			p.With(checkoutLimit, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)
			p.With(checkoutLimit).Post("/payments/confirm", paymentHandler.Confirm)
		})
	})
	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	if cfg.AppEnv == "production" {
		return []string{}
	}
	return []string{"http://localhost:3000", "http://127.0.0.1:3000"}
}
