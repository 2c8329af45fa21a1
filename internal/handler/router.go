package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/pkg/middleware"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter wires the HTTP surface. limiter guards the payment endpoints and
// may be nil; webhooks are never rate limited.
func NewRouter(payments *PaymentHandler, webhooks *WebhookHandler, db Pinger, limiter *middleware.RateLimiter, log *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Health checks
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	// Metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		p := v1.Group("/payments")
		if limiter != nil {
			p.Use(middleware.RateLimit(limiter, log))
		}
		{
			p.POST("/start", payments.StartPayment)
			p.GET("/attempts/:id", payments.GetAttempt)
		}

		v1.POST("/webhooks/stripe", webhooks.StripeWebhook)
	}

	return router
}
