package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"etf-gap-trader/internal/engine"
	"etf-gap-trader/internal/engine/engineobs"
	"etf-gap-trader/internal/eod"
	"etf-gap-trader/internal/eod/eodobs"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/notify/telegram"
	"etf-gap-trader/internal/trace"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	setupTriggers := flag.Bool("setup-triggers", false, "place buy-on-dip triggers for the watchlist and exit")
	flag.Parse()

	if err := initializeSystem(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(*configPath, *setupTriggers); err != nil {
		logger.ErrorWithErr(context.Background(), "Trader exited with error", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(configPath string, setupTriggers bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return err
	}
	compressOldReports(ctx, cfg)

	var closers closerChain
	defer func() {
		if err := closers.close(); err != nil {
			logger.Warn(context.Background(), "Error closing resources", "error", err)
		}
	}()
	closers.add(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return trace.Shutdown(sctx)
	})

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		return err
	}
	st, err := initializeStore(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	tg, err := initializeTelegram(ctx, cfg)
	if err != nil {
		return err
	}
	notifier := initializeNotifier(tg, cfg)

	base := engine.New(cfg, brk, st, notifier)
	if err := base.SeedGuard(ctx); err != nil {
		return err
	}
	coord := engineobs.Wrap(base)

	if setupTriggers {
		placed, err := base.PlaceBuyTriggers(ctx, cfg.Watchlist, cfg.DryRun())
		logger.Info(ctx, "Buy triggers placed", "count", len(placed))
		return err
	}

	summarizer, err := eod.FromConfig(cfg, st)
	if err != nil {
		return err
	}

	srv := startMetricsServer(ctx, cfg)

	var wg sync.WaitGroup
	if tg != nil {
		bot := telegram.NewBot(tg, cfg.Telegram.ChatID, engine.NewCommands(coord, st, cfg.DryRun()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bot.Run(ctx); err != nil {
				logger.ErrorWithErr(ctx, "Telegram bot stopped", err)
			}
		}()
	}

	monitor := engine.NewMonitor(engine.MonitorConfig{
		Watchlist:    cfg.Watchlist,
		DryRun:       cfg.DryRun(),
		Poll:         time.Duration(cfg.PollSeconds) * time.Second,
		Reconcile:    time.Duration(cfg.Schedule.ReconcileSeconds) * time.Second,
		Housekeeping: time.Duration(cfg.Schedule.HousekeepingSeconds) * time.Second,
	}, coord, st, brk, eodobs.Wrap(summarizer), notifier)

	logger.Info(ctx, "Trader started",
		"mode", cfg.Mode,
		"data_source", cfg.DataSource,
		"watchlist", cfg.Watchlist,
	)
	runErr := monitor.Run(ctx)

	logger.Info(context.Background(), "Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := base.Close(sctx); err != nil {
		logger.Warn(sctx, "In-flight operations did not drain", "error", err)
	}
	wg.Wait()
	if srv != nil {
		_ = srv.Shutdown(sctx)
	}
	return runErr
}
