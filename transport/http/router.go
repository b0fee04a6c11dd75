package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/layer-3/faucet/internal/metrics"
	"github.com/layer-3/faucet/ports"
	"github.com/layer-3/faucet/transport/command"
)

// RouterConfig tunes the webhook limiter
type RouterConfig struct {
	ServiceName string
	RateRPS     float64
	RateBurst   int
}

// SetupRouter sets up the Gin router
func SetupRouter(router *command.Router, auth ports.Authenticator, cfg RouterConfig, logger zerolog.Logger) *gin.Engine {
	engine := gin.New()
	logger = logger.With().Str("component", "http").Logger()

	engine.Use(
		Recovery(logger),
		otelgin.Middleware(cfg.ServiceName),
		metrics.GinMiddleware(),
		RequestLogger(logger),
	)

	handlers := NewMessageHandlers(router)
	limiter := NewRateLimiter(cfg.RateRPS, cfg.RateBurst)

	engine.GET("/healthz", handlers.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhook := engine.Group("/webhook")
	webhook.Use(AuthMiddleware(auth), limiter.Handler())
	{
		webhook.POST("/messages", handlers.Message)
	}

	return engine
}
