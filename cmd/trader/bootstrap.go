package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/broker/brokerobs"
	"etf-gap-trader/internal/broker/paper"
	"etf-gap-trader/internal/broker/zerodha"
	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/notify"
	"etf-gap-trader/internal/notify/telegram"
	"etf-gap-trader/internal/storage/redisfeed"
	"etf-gap-trader/internal/storage/sqlstore"
	"etf-gap-trader/internal/store"
	"etf-gap-trader/internal/trace"
	"etf-gap-trader/internal/tradelog"
)

const redisPingTimeout = 3 * time.Second

// closerChain runs registered closers in reverse order.
type closerChain []func() error

func (c *closerChain) add(f func() error) { *c = append(*c, f) }

func (c closerChain) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initializeSystem loads .env and sets up the logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// compressOldReports archives EOD reports past the retention window.
func compressOldReports(ctx context.Context, cfg *store.Config) {
	v := os.Getenv("TRADER_LOG_RETENTION_DAYS")
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.Warn(ctx, "Ignoring invalid TRADER_LOG_RETENTION_DAYS", "value", v)
		return
	}
	archived, err := tradelog.CompressOlder(cfg.Schedule.EODDir, n, time.Now())
	if err != nil {
		logger.Warn(ctx, "Failed to compress old EOD reports", "error", err)
	}
	if len(archived) > 0 {
		logger.Info(ctx, "Archived old EOD reports", "count", len(archived))
	}
}

// initializeBroker picks the Kite adapter for LIVE data and the paper venue
// otherwise, wrapped with observability.
func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	if cfg.DryRun() {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	}

	var brk interfaces.Broker
	if cfg.DataSource == "LIVE" {
		z, err := zerodha.NewZerodha(zerodha.Params{
			APIKey:      cfg.Kite.APIKey,
			AccessToken: cfg.Kite.AccessToken,
			Exchange:    cfg.Exchange,
		})
		if err != nil {
			return nil, fmt.Errorf("zerodha: %w", err)
		}
		logger.Info(ctx, "Using LIVE market data from Zerodha", "exchange", cfg.Exchange)
		brk = z
	} else {
		logger.Info(ctx, "Using STATIC paper venue", "paper_balance", cfg.Capital.PaperBalance)
		brk = paper.New(paper.Params{
			Balance: decimal.NewFromFloat(cfg.Capital.PaperBalance),
			Drift:   0.01,
			Seed:    time.Now().UnixNano(),
		})
	}
	return brokerobs.Wrap(brk), nil
}

// initializeStore opens the durable store and, when enabled, layers the
// Redis activity feed on top.
func initializeStore(ctx context.Context, cfg *store.Config, closers *closerChain) (interfaces.Store, error) {
	db, err := sqlstore.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	closers.add(db.Close)
	logger.Info(ctx, "Store opened", "driver", cfg.Storage.Driver)

	if !cfg.Redis.Enabled {
		return db, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		// the feed is best-effort; keep it and let publishes fail quietly
		logger.Warn(ctx, "Redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
	}
	closers.add(rdb.Close)
	logger.Info(ctx, "Redis activity feed enabled", "stream", cfg.Redis.Stream, "channel", cfg.Redis.Channel)
	return redisfeed.New(db, rdb, cfg.Redis.Stream, cfg.Redis.Channel), nil
}

// initializeTelegram returns the bot API client, or nil when chat is disabled.
func initializeTelegram(ctx context.Context, cfg *store.Config) (*tgbotapi.BotAPI, error) {
	if !cfg.Telegram.Enabled {
		logger.Info(ctx, "Telegram disabled - notifications go to the log only")
		return nil, nil
	}
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return api, nil
}

func initializeNotifier(api *tgbotapi.BotAPI, cfg *store.Config) interfaces.Notifier {
	chain := notify.Multi{notify.Log{}}
	if api != nil {
		chain = append(chain, telegram.NewNotifier(api, cfg.Telegram.ChatID))
	}
	return chain
}

// startMetricsServer serves /metrics and /healthz until Shutdown.
func startMetricsServer(ctx context.Context, cfg *store.Config) *http.Server {
	if !cfg.Metrics.Enabled {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", cfg.Metrics.Addr)
		}
	}()
	logger.Info(ctx, "Metrics server listening", "addr", cfg.Metrics.Addr)
	return srv
}
