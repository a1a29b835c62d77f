package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/database"
	kafkainfra "github.com/ArsPalazzz/memora-api-sub000/internal/infra/kafka"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/logger"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/push"
	redisinfra "github.com/ArsPalazzz/memora-api-sub000/internal/infra/redis"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/security"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/telemetry"
	postgresrepo "github.com/ArsPalazzz/memora-api-sub000/internal/repository/postgres"
	redisrepo "github.com/ArsPalazzz/memora-api-sub000/internal/repository/redis"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/middleware"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/routes"
	"github.com/ArsPalazzz/memora-api-sub000/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	producer  *kafkainfra.Producer
	tracing   *telemetry.TracerProvider
	scheduler *usecase.Scheduler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.init(ctx); err != nil {
		a.closeResources(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) init(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	var tracerProvider trace.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracing = tp
		tracerProvider = tp.Provider()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	redisClient, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	a.redis = redisClient

	verifier, err := security.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	store := postgresrepo.NewStore(pool)
	repos := store.Repositories()

	events := a.eventPublisher()

	sender, err := push.New(ctx, cfg.Push, log)
	if err != nil {
		return fmt.Errorf("init push sender: %w", err)
	}

	gameService := usecase.NewGameService(repos.Games, repos.Cards, repos.Notifications, store, events, log).
		WithMetrics(metrics.Game).
		WithDefaultCardsPerSession(cfg.Game.DefaultCardsPerSession).
		WithSessionTTL(cfg.Game.SessionTTL)

	reviewService := usecase.NewReviewService(repos.Notifications, repos.Cards, repos.Tokens, store, sender, events, log).
		WithMetrics(metrics.Review).
		WithLookback(cfg.Review.BatchLookback).
		WithDefaultCardsPerBatch(cfg.Review.DefaultCardsPerSession).
		WithMaxParallelSends(cfg.Push.MaxParallelSends)
	if a.tracing != nil {
		reviewService.WithTracer(a.tracing.Tracer("github.com/ArsPalazzz/memora-api-sub000/internal/usecase"))
	}

	tokenService := usecase.NewFcmTokenService(repos.Tokens, store, events, log).
		WithMaxActiveTokens(cfg.Push.MaxActiveTokens).
		WithMetrics(metrics.Review)

	location := time.UTC
	if cfg.Review.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Review.Timezone)
		if err != nil {
			return fmt.Errorf("load review timezone %q: %w", cfg.Review.Timezone, err)
		}
		location = loc
	}
	a.scheduler = usecase.NewScheduler(repos.Cards, reviewService, gameService, usecase.SchedulerConfig{
		ScanInterval:  cfg.Review.ScanInterval,
		TaskTimeout:   cfg.Review.ScanTimeout,
		MinDueCards:   cfg.Review.MinDueCards,
		ReapInterval:  cfg.Game.ReapInterval,
		ReminderTimes: cfg.Review.ReminderTimes,
		Location:      location,
	}, log).WithMetrics(metrics.Scheduler)

	windowDuration := cfg.RateLimit.WindowDuration
	if windowDuration <= 0 {
		windowDuration = time.Minute
	}
	attemptStore := redisrepo.NewAttemptStore(redisClient.Redis(), redisrepo.AttemptStoreConfig{
		KeyPrefix: cfg.Redis.RateLimitPrefix,
		TTL:       windowDuration * 2,
	})

	a.engine = routes.Register(routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		RateLimiter:    middleware.NewRateLimiter(attemptStore, log),
		Verifier:       verifier,
		HTTPMetrics:    httpMetrics,
		Gatherer:       registry,
		TracerProvider: tracerProvider,
		Database:       pool,
		Cache:          redisClient,
		Services: routes.ServiceSet{
			Games:  gameService,
			Tokens: tokenService,
		},
	})

	return nil
}

func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App)
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.closeResources(context.Background())

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting memora API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// closeResources stops background work before closing the connections it uses.
func (a *Application) closeResources(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler.Wait()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracing", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
