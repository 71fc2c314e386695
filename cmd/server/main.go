// Package main is the entry point for the route ledger API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"routeledger/internal/app"
	"routeledger/internal/config"
	v1 "routeledger/internal/infrastructure/http/v1"
	"routeledger/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("LEDGER_CONFIG_DIR"))
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting routeledger server", "storage", cfg.Storage.Driver, "redis", cfg.Redis.Enabled)

	ledger, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatalw("failed to wire ledger", "error", err)
	}
	defer ledger.Close()

	if err := ledger.Start(ctx); err != nil {
		log.Fatalw("startup recovery failed", "error", err)
	}

	routerCfg := v1.RouterConfig{
		Shops:       ledger.Shops,
		Stock:       ledger.Stock,
		Deliveries:  ledger.Deliveries,
		Reconciler:  ledger.Reconciler,
		Settlement:  ledger.Settlement,
		Logger:      log,
		Idempotency: ledger.Idempotency,
		ReadyChecks: ledger.ReadyChecks,
	}
	if cfg.Log.Development {
		routerCfg.Mode = gin.DebugMode
	}
	if ledger.Tokens != nil {
		routerCfg.Tokens = ledger.Tokens
	} else {
		log.Warn("auth.jwt_secret is empty, every request acts as the local operator")
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      v1.NewRouter(routerCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("server starting", "address", cfg.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	log.Info("server stopped")
}
