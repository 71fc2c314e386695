// Package main is the entry point for the settlement worker. It runs the
// daily settlement at settlement.run_at in settlement.timezone.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"routeledger/internal/app"
	"routeledger/internal/config"
	"routeledger/internal/core/apperror"
	appctx "routeledger/internal/core/context"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/settlement"
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

	if err := run(cfg, log.WithComponent("worker")); err != nil {
		log.Errorw("worker failed", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped")
}

func run(cfg config.Config, log *logger.Logger) error {
	if err := cfg.RequireSharedStorage(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The scheduler acts for the office, not for an operator.
	ledger, err := app.New(ctx, cfg, log, app.Options{Authorizer: settlement.AllowAll})
	if err != nil {
		return err
	}
	defer ledger.Close()

	if err := ledger.Start(ctx); err != nil {
		return err
	}

	loc, err := time.LoadLocation(cfg.Settlement.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}
	at, err := time.Parse("15:04", cfg.Settlement.RunAt)
	if err != nil {
		return fmt.Errorf("parse run_at: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
		if err != nil {
			return err
		}
		job, err := scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(at.Hour()), uint(at.Minute()), 0))),
			gocron.NewTask(func() { settle(ctx, ledger.Settlement, loc, log) }),
			gocron.WithName("daily-settlement"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
		scheduler.Start()
		if next, err := job.NextRun(); err == nil {
			log.Infow("settlement scheduled", "next_run", next, "timezone", loc.String())
		}

		<-ctx.Done()
		return scheduler.Shutdown()
	})

	return g.Wait()
}

func settle(ctx context.Context, engine *settlement.Engine, loc *time.Location, log *logger.Logger) {
	day := types.Day(time.Now().In(loc))
	ctx = appctx.WithTrace(ctx, appctx.NewTrace(appctx.OriginWorker, ""))
	res, err := engine.Run(ctx, day)
	switch {
	case err == nil && res.AlreadySettled:
		log.Infow("settlement skipped, nothing new since last run", "date", types.FormatDay(day))
	case err == nil:
		log.Infow("settlement completed",
			"date", types.FormatDay(day),
			"archive_id", res.Archive.ID,
			"sequence", res.Archive.Sequence,
			"outstanding", res.Archive.Summary.Outstanding.String(),
		)
	case apperror.Is(err, apperror.CodeSettlementInProgress):
		log.Warnw("settlement already running elsewhere", "date", types.FormatDay(day))
	default:
		log.Errorw("settlement failed", "date", types.FormatDay(day), "error", err)
	}
}
