package main

import (
	"context"

	"github.com/spf13/cobra"

	"routeledger/internal/app"
	appctx "routeledger/internal/core/context"
	"routeledger/internal/config"
	"routeledger/internal/domain/settlement"
	"routeledger/pkg/logger"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:          "ledgerctl",
	Short:        "Operator console for the route ledger",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory holding config.yaml (LEDGER_* env vars override it)")
}

func loadConfig() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: true})
	if err != nil {
		return config.Config{}, nil, err
	}
	logger.SetDefault(log)
	return cfg, log, nil
}

// withLedger wires the ledger for one command. The console operator is
// trusted to settle.
func withLedger(ctx context.Context, fn func(ctx context.Context, ledger *app.App) error) error {
	return openLedger(ctx, false, fn)
}

// withSharedLedger is withLedger for commands that write beside a running
// server, which needs storage shared between processes.
func withSharedLedger(ctx context.Context, fn func(ctx context.Context, ledger *app.App) error) error {
	return openLedger(ctx, true, fn)
}

func openLedger(ctx context.Context, shared bool, fn func(ctx context.Context, ledger *app.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if shared {
		if err := cfg.RequireSharedStorage(); err != nil {
			return err
		}
	}
	ledger, err := app.New(ctx, cfg, log.WithComponent("ledgerctl"), app.Options{Authorizer: settlement.AllowAll})
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(appctx.WithTrace(ctx, appctx.NewTrace(appctx.OriginCLI, "")), ledger)
}
