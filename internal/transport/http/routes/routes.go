package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/config"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/handlers"
	"github.com/ArsPalazzz/memora-api-sub000/internal/transport/http/middleware"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Games  handlers.GameUsecase
	Tokens handlers.FcmTokenUsecase
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	RateLimiter    *middleware.RateLimiter
	Services       ServiceSet
	Verifier       middleware.TokenVerifier
	HTTPMetrics    *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
	TracerProvider trace.TracerProvider
	Database       DatabaseChecker
	Cache          CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config != nil && deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Tracing(deps.TracerProvider))
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(deps.HTTPMetrics.Handler())

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(metricsHandler(deps.Gatherer)))

	api := r.Group("/api/v1")
	api.Use(middleware.RequireAuth(deps.Verifier))
	{
		gameHandler := handlers.NewGameHandler(deps.Services.Games)
		gameHandler.RegisterRoutes(api.Group("/game"), buildAnswerLimit(deps))

		tokenHandler := handlers.NewFcmTokenHandler(deps.Services.Tokens)
		tokenHandler.RegisterRoutes(api.Group("/notifications/fcm-tokens"))
	}

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func buildAnswerLimit(deps Dependencies) gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.AnswerMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.Limit(middleware.RateLimitRule{
		Name:       "game_answer_user",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.UserSubIdentifier(),
	})
}
