package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/config"
	"github.com/cicconel11/TeamNetwork-sub008/internal/gateway"
	"github.com/cicconel11/TeamNetwork-sub008/internal/handler"
	"github.com/cicconel11/TeamNetwork-sub008/internal/repository"
	"github.com/cicconel11/TeamNetwork-sub008/internal/service"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/database"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/middleware"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/redis"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServer(cfg, log)
		},
	}
}

func runServer(cfg *config.Config, log *zap.Logger) error {
	// Initialize database
	db, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// Redis only backs caches; without it every lookup goes to postgres.
	var cache service.Cache = service.NoopCache{}
	if cfg.RedisURL != "" {
		redisClient, err := redis.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(pingCtx); err != nil {
			log.Warn("redis unreachable, continuing without cache", zap.Error(err))
		}
		cancel()
		cache = service.NewRedisCache(redisClient, cfg.ReplayCacheTTL, cfg.AccountCacheTTL, log)
	}

	gw := gateway.NewStripeGateway(cfg.StripeSecretKey, gateway.Options{
		Timeout:           cfg.GatewayTimeout,
		MaxNetworkRetries: cfg.StripeMaxRetries,
		Logger:            log,
	})

	// Initialize repositories
	attempts := repository.NewAttemptRepository(db.DB)
	events := repository.NewEventRepository(db.DB)
	records := repository.NewRecordRepository(db.DB)
	orgs := repository.NewOrganizationRepository(db.DB)

	// Initialize services
	wait := service.DefaultWaitPolicy()
	wait.Budget = cfg.WaitBudget
	checkout := service.NewCheckoutService(attempts, orgs, gw, cache, service.CheckoutConfig{
		GatewayTimeout: cfg.GatewayTimeout,
		ClaimLease:     cfg.ClaimLease,
		Wait:           wait,
		SuccessURL:     cfg.CheckoutSuccessURL,
		CancelURL:      cfg.CheckoutCancelURL,
	}, log)
	webhooks := service.NewWebhookService(events, attempts, records, orgs, gw, cfg.GatewayTimeout, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(
		handler.NewPaymentHandler(checkout, log),
		handler.NewWebhookHandler(webhooks, cfg.StripeWebhookSecret, log),
		db,
		middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute),
		log,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}
