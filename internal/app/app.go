package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/api"
	"github.com/enobongmedem-code/darnumber-sub000/internal/api/middleware"
	"github.com/enobongmedem-code/darnumber-sub000/internal/config"
	"github.com/enobongmedem-code/darnumber-sub000/internal/db"
	"github.com/enobongmedem-code/darnumber-sub000/internal/idempotency"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
	"github.com/enobongmedem-code/darnumber-sub000/internal/pricing"
	"github.com/enobongmedem-code/darnumber-sub000/internal/provider"
	"github.com/enobongmedem-code/darnumber-sub000/internal/repository"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"
	"github.com/enobongmedem-code/darnumber-sub000/internal/statuscache"
	"github.com/enobongmedem-code/darnumber-sub000/internal/worker"
)

// Run bootstraps the HTTP server and background workers, blocking until
// shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	// Redis is a cache, not a dependency. Without it the status cache and
	// idempotency fast path degrade; postgres stays authoritative.
	redisClient := newRedisClient(cfg.RedisURL, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}

	store := repository.NewStore(pool)
	registry := buildRegistry(cfg)

	pricingEngine := pricing.NewEngine(store.Queries(), cfg.RuleCacheTTL, cfg.DefaultMarkupPercent)
	statusCache := statuscache.New(redisClient, cfg.StatusCacheTTL)
	idemStore := idempotency.NewStore(redisCmd, pool, cfg.IdempotencyTTL)

	audit := service.NewAuditService(store)
	wallet := service.NewWalletService(store, audit)
	orders := service.NewOrderService(store, registry, pricingEngine, wallet, audit, statusCache, cfg.OrderTTL)
	webhooks := service.NewWebhookService(store, wallet, cfg.WebhookHMACKey, cfg.WebhookSkipSignature)
	admin := service.NewAdminService(store, audit, pricingEngine, orders)
	ledger := service.NewLedgerService(store)
	health := service.NewProviderHealthService(store, registry)

	expiryWorker := worker.NewExpiryWorker(orders).
		WithInterval(cfg.ExpirySweepInterval).
		WithBatchSize(cfg.SweepBatchSize)
	pollWorker := worker.NewPollWorker(orders).
		WithInterval(cfg.SMSPollInterval).
		WithBatchSize(cfg.SweepBatchSize)
	healthWorker := worker.NewHealthWorker(health).
		WithInterval(cfg.HealthCheckInterval)
	ledgerWorker := worker.NewLedgerWorker(ledger, idemStore).
		WithInterval(cfg.LedgerAuditInterval).
		WithRetention(cfg.IdempotencyTTL)

	stopExpiry := expiryWorker.Run(ctx)
	stopPoll := pollWorker.Run(ctx)
	stopHealth := healthWorker.Run(ctx)
	stopLedger := ledgerWorker.Run(ctx)

	router := api.NewRouter(pool, redisCmd, orders, wallet, webhooks, admin, idemStore,
		cfg.PublicRateLimitRPS, cfg.AuthRateLimitRPS)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopExpiry()
	stopPoll()
	stopHealth()
	stopLedger()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func buildRegistry(cfg *config.Config) *provider.Registry {
	if cfg.UseMockProvider {
		return provider.NewRegistry(provider.NewMockAdapter())
	}

	opts := provider.ClientOptions{
		Timeout:     cfg.ProviderTimeout,
		MaxRetries:  cfg.ProviderMaxRetries,
		BackoffBase: cfg.ProviderBackoffBase,
		RateLimit:   cfg.ProviderRateLimitRPS,
	}

	var adapters []provider.Adapter
	if cfg.SMSMan.APIKey != "" {
		adapters = append(adapters, provider.NewSMSMan(cfg.SMSMan.APIURL, cfg.SMSMan.APIKey, opts))
	}
	if cfg.TextVerified.APIKey != "" {
		adapters = append(adapters, provider.NewTextVerified(
			cfg.TextVerified.APIURL, cfg.TextVerified.APIKey, cfg.TextVerified.Username, opts))
	}
	return provider.NewRegistry(adapters...)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string, logger *zap.Logger) *redis.Client {
	opt, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid redis url, running without redis", zap.Error(err))
		return nil
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		logger.Warn("redis unreachable, running without redis", zap.Error(err))
		return nil
	}
	return client
}
