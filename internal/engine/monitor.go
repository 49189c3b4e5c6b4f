package engine

import (
	"context"
	"time"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// MonitorConfig sets the loop cadences.
type MonitorConfig struct {
	Watchlist    []string
	DryRun       bool
	Poll         time.Duration
	Reconcile    time.Duration
	Housekeeping time.Duration
}

// Monitor drives the coordinator on timers: evaluate open positions and
// attempt buys every poll, reconcile conditional orders and run housekeeping
// on their own cadence, and write the EOD summary once the session closes.
type Monitor struct {
	cfg      MonitorConfig
	coord    interfaces.Coordinator
	store    interfaces.PositionStore
	quotes   interfaces.Broker
	eod      interfaces.EodSummarizer
	notifier interfaces.Notifier
	now      func() time.Time
}

func NewMonitor(cfg MonitorConfig, coord interfaces.Coordinator, st interfaces.PositionStore, brk interfaces.Broker, eod interfaces.EodSummarizer, n interfaces.Notifier) *Monitor {
	return &Monitor{cfg: cfg, coord: coord, store: st, quotes: brk, eod: eod, notifier: n, now: time.Now}
}

// Run blocks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	logger.Info(ctx, "Monitor loop started",
		"symbols", len(m.cfg.Watchlist),
		"poll", m.cfg.Poll.String(),
		"reconcile", m.cfg.Reconcile.String(),
		"housekeeping", m.cfg.Housekeeping.String(),
		"dry_run", m.cfg.DryRun,
	)
	m.coord.RefreshCapital(ctx)
	m.housekeeping(ctx)
	m.reconcile(ctx)

	poll := time.NewTicker(m.cfg.Poll)
	defer poll.Stop()
	rec := time.NewTicker(m.cfg.Reconcile)
	defer rec.Stop()
	hk := time.NewTicker(m.cfg.Housekeeping)
	defer hk.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Monitor loop stopping")
			return nil
		case <-poll.C:
			m.Tick(ctx)
			m.maybeEOD(ctx)
		case <-rec.C:
			m.reconcile(ctx)
		case <-hk.C:
			m.housekeeping(ctx)
		}
	}
}

// Tick runs one pass: open positions are evaluated against the last price,
// then every watchlist symbol without a position row gets a buy attempt.
func (m *Monitor) Tick(ctx context.Context) {
	start := time.Now()
	metrics.MonitorTicks.Inc()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	all, err := m.store.ListPositions(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Monitor could not load positions", err)
		return
	}
	known := make(map[string]types.PositionStatus, len(all))
	for _, p := range all {
		known[p.Symbol] = p.Status
		if !p.Status.IsOpen() {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		q, err := m.quotes.Quote(ctx, p.Symbol)
		if err != nil {
			logger.Warn(ctx, "Quote unavailable for open position", "symbol", p.Symbol, "error", err)
			continue
		}
		if _, err := m.coord.EvaluateOpenPosition(ctx, p, q.LastPrice); err != nil {
			logger.ErrorWithErr(ctx, "Position evaluation failed", err, "symbol", p.Symbol)
		}
	}

	for _, sym := range m.cfg.Watchlist {
		if ctx.Err() != nil {
			return
		}
		// Closed rows wait for housekeeping before the symbol is bought again.
		if st, ok := known[sym]; ok && st != types.StatusWatching {
			continue
		}
		out := m.coord.ExecuteBuy(ctx, sym, m.cfg.DryRun)
		if out.Status != types.BuySkipped {
			logger.Info(ctx, "Buy attempt finished",
				"symbol", sym,
				"status", string(out.Status),
				"order_id", out.OrderID,
				"qty", out.Quantity,
				"degraded", out.Degraded,
			)
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context) {
	if err := m.coord.ReconcileConditionalOrders(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Conditional order reconcile failed", err)
	}
}

func (m *Monitor) housekeeping(ctx context.Context) {
	if err := m.coord.RunHousekeeping(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Housekeeping failed", err)
	}
}

func (m *Monitor) maybeEOD(ctx context.Context) {
	if m.eod == nil {
		return
	}
	now := m.now()
	if !m.eod.ShouldRunNow(now) {
		return
	}
	path, err := m.eod.SummarizeDay(ctx, now)
	if err != nil {
		logger.ErrorWithErr(ctx, "EOD summary failed", err)
		return
	}
	if path != "" && m.notifier != nil {
		m.notifier.Notify(ctx, "EOD summary written: "+path)
	}
}
