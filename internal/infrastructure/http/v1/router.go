// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	appctx "routeledger/internal/core/context"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/domain/shop"
	"routeledger/internal/domain/stock"
	"routeledger/internal/infrastructure/http/v1/handlers"
	"routeledger/internal/infrastructure/http/v1/middleware"
	"routeledger/internal/infrastructure/idempotency"
	"routeledger/pkg/logger"
)

// RouterConfig holds the services behind the API.
type RouterConfig struct {
	Shops      *shop.Directory
	Stock      *stock.Registry
	Deliveries *delivery.Ledger
	Reconciler *payment.Reconciler
	Settlement *settlement.Engine

	// Logger for request logging
	Logger *logger.Logger

	// Tokens validates bearer tokens. Nil disables authentication and every
	// request acts as a local operator holding LocalScopes.
	Tokens      middleware.TokenValidator
	LocalScopes []string

	// Idempotency enables X-Idempotency-Key replay on POST; nil disables it.
	Idempotency idempotency.Store

	// ReadyChecks back /health/ready.
	ReadyChecks map[string]handlers.Check

	// Mode is the gin mode; empty means release.
	Mode string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	mode := cfg.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	handlers.RegisterValidations()

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.ReadyChecks)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	api := router.Group("/api/v1")
	if cfg.Tokens != nil {
		api.Use(middleware.Auth(cfg.Tokens))
	} else {
		scopes := cfg.LocalScopes
		if scopes == nil {
			scopes = []string{appctx.ScopeSettlement}
		}
		api.Use(middleware.LocalOperator(scopes...))
	}
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerShopRoutes(api.Group("/shops"), handlers.NewShopHandler(base, cfg.Shops, cfg.Reconciler))
	registerProductRoutes(api.Group("/products"), handlers.NewProductHandler(base, cfg.Stock))
	registerDeliveryRoutes(api.Group("/deliveries"), handlers.NewDeliveryHandler(base, cfg.Deliveries))
	registerMoneyRoutes(api, handlers.NewPaymentHandler(base, cfg.Reconciler))
	registerSettlementRoutes(api.Group("/settlement"), handlers.NewSettlementHandler(base, cfg.Settlement))

	return router
}
