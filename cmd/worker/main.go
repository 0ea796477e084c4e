package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "toko-checkout-worker",
			Endpoint:      cfg.TracingEndpoint,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri")
	}

	consumer := events.Consumer{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		writer := events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		consumer.Relay = events.KafkaNotifier{Writer: writer}
	} else {
		logger.Warn().Msg("KAFKA_BROKERS empty, events are logged only")
	}

	mux := asynq.NewServeMux()
	consumer.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.QueueName: 1},
		Logger:      asynqLogger{l: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).Str("task", task.Type()).Int("retry", retried).Int("max_retry", maxRetry).Msg("event task failed")
		}),
	})

	logger.Info().Str("queue", cfg.QueueName).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	l zerolog.Logger
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(sprint(args)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(sprint(args)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(sprint(args)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(sprint(args)) }
func (a asynqLogger) Fatal(args ...interface{}) {
	a.l.Error().Msg(sprint(args))
	os.Exit(1)
}

func sprint(args []interface{}) string { return fmt.Sprint(args...) }
