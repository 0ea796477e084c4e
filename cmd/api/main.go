package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/toko-checkout/internal/app"
	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/database"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Str("service", "toko-checkout-api").Logger()
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracing := cfg.TracingEnabled
	if tracing {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "toko-checkout-api",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracing = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := database.NewPool(startCtx, cfg.DatabaseURL, "toko-checkout-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := database.RunMigrations(pool, cfg.MigrationsPath); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	redisClient, err := app.OpenRedis(startCtx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis uri")
	}
	tasks := asynq.NewClient(redisOpt)
	defer func() { _ = tasks.Close() }()

	notifiers := []events.Notifier{
		events.TaskNotifier{Client: tasks, Queue: cfg.QueueName, MaxRetry: 10, Retention: 24 * time.Hour},
	}

	infra := app.Infra{
		Store:     postgres.New(pool),
		Redis:     redisClient,
		Notifiers: notifiers,
		Health:    health.Deps{Pool: pool, Redis: redisClient},
		Logger:    logger,
	}
	services, err := app.NewServices(cfg, infra)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}
	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: 30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}

	opts := app.RouterOptions{Tracing: tracing}
	if cfg.MetricsEnabled {
		opts.HTTPMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.DefaultHTTPBuckets, nil)
	}
	router, err := app.NewRouter(cfg, infra, services, verifier, opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("payment_provider", cfg.PaymentProvider).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}

	health.SetReady(false)
	logger.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
