package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/api/handler"
	"github.com/enobongmedem-code/darnumber-sub000/internal/api/middleware"
	"github.com/enobongmedem-code/darnumber-sub000/internal/api/spec"
	"github.com/enobongmedem-code/darnumber-sub000/internal/idempotency"
	"github.com/enobongmedem-code/darnumber-sub000/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Router wires services into the HTTP surface.
type Router struct {
	db          *pgxpool.Pool
	redis       redis.Cmdable
	orders      *service.OrderService
	wallet      *service.WalletService
	webhooks    *service.WebhookService
	admin       *service.AdminService
	idempotency *idempotency.Store
	publicRPS   int
	authRPS     int
}

func NewRouter(
	db *pgxpool.Pool,
	redisClient redis.Cmdable,
	orders *service.OrderService,
	wallet *service.WalletService,
	webhooks *service.WebhookService,
	admin *service.AdminService,
	idem *idempotency.Store,
	publicRPS, authRPS int,
) *Router {
	if publicRPS <= 0 {
		publicRPS = 20
	}
	if authRPS <= 0 {
		authRPS = 10
	}
	return &Router{
		db:          db,
		redis:       redisClient,
		orders:      orders,
		wallet:      wallet,
		webhooks:    webhooks,
		admin:       admin,
		idempotency: idem,
		publicRPS:   publicRPS,
		authRPS:     authRPS,
	}
}

func (api *Router) Routes() chi.Router {
	logger := zap.L()

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(logger))
	r.Use(middleware.LoggingMiddleware(logger))
	r.Use(middleware.MetricsMiddleware)

	orderHandler := handler.NewOrderHandler(api.orders)
	walletHandler := handler.NewWalletHandler(api.wallet)
	webhookHandler := handler.NewWebhookHandler(api.webhooks)
	adminHandler := handler.NewAdminHandler(api.admin, api.wallet)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz/live", healthHandler.Live)
	r.Get("/healthz/ready", healthHandler.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())

	// Gateway callbacks are authenticated by HMAC, not JWT.
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.publicRPS))
		r.Post("/v1/webhooks/deposit", webhookHandler.HandleDeposit)
	})

	// User routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.authRPS))

		r.With(middleware.IdempotencyMiddleware(api.idempotency, logger)).
			Post("/v1/orders", orderHandler.CreateOrder)
		r.Get("/v1/orders", orderHandler.ListOrders)
		r.Get("/v1/orders/{id}", orderHandler.GetOrder)
		r.Delete("/v1/orders/{id}", orderHandler.CancelOrder)

		r.Get("/v1/wallet", walletHandler.GetBalance)
		r.Get("/v1/wallet/transactions", walletHandler.ListTransactions)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RequireRole("admin"))

		r.Get("/v1/admin/pricing-rules", adminHandler.ListPricingRules)
		r.Post("/v1/admin/pricing-rules", adminHandler.CreatePricingRule)
		r.Put("/v1/admin/pricing-rules/{id}", adminHandler.UpdatePricingRule)
		r.Post("/v1/admin/pricing-rules/{id}/active", adminHandler.SetPricingRuleActive)
		r.Delete("/v1/admin/pricing-rules/{id}", adminHandler.DeletePricingRule)

		r.Get("/v1/admin/providers", adminHandler.ListProviders)
		r.Post("/v1/admin/providers", adminHandler.CreateProvider)
		r.Put("/v1/admin/providers/{id}", adminHandler.UpdateProvider)

		r.Post("/v1/admin/users/{id}/adjust-balance", adminHandler.AdjustBalance)
		r.Post("/v1/admin/orders/{id}/refund", adminHandler.OverrideRefund)
	})

	return r
}
