package engine

import (
	"context"
	"fmt"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// RunHousekeeping rolls the session over at IST midnight, purges terminal
// positions (releasing their symbols), refreshes capital and logs a summary.
func (c *Coordinator) RunHousekeeping(ctx context.Context) error {
	c.rollover(ctx)

	purged, err := c.store.PurgeTerminal(ctx)
	if err != nil {
		return fmt.Errorf("purge terminal positions: %w", err)
	}
	for _, s := range purged {
		c.guard.Release(s)
	}
	if len(purged) > 0 {
		logger.Info(ctx, "Purged closed positions", "symbols", purged)
	}

	st := c.ledger.Refresh(ctx)

	all, err := c.store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("position summary: %w", err)
	}
	counts := countByStatus(all)
	metrics.OpenPositions.Set(float64(counts[types.StatusBought] + counts[types.StatusAlerted]))
	logger.Info(ctx, "Housekeeping summary",
		"bought", counts[types.StatusBought],
		"alerted", counts[types.StatusAlerted],
		"target_hit", counts[types.StatusTargetHit],
		"sold", counts[types.StatusSold],
		"purged", len(purged),
		"guarded", len(c.guard.Snapshot()),
		"total_capital", st.TotalCapital.StringFixed(2),
		"allocated", st.AllocatedCapital.StringFixed(2),
	)
	return nil
}

// rollover starts a new session when the IST date changes: the attempt guard
// and previous-close cache are cleared, then the guard is reseeded from the
// store.
func (c *Coordinator) rollover(ctx context.Context) {
	today := midnightIST(c.now())
	c.cacheMu.Lock()
	if !today.After(c.sessionDay) {
		c.cacheMu.Unlock()
		return
	}
	c.sessionDay = today
	c.prevCloses = make(map[string]types.WatchlistEntry)
	c.cacheMu.Unlock()

	c.guard.Reset()
	if err := c.SeedGuard(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to reseed guard for new session", err)
	}
	logger.Info(ctx, "New trading session", "day", today.Format("2006-01-02"))
}

func (c *Coordinator) RefreshCapital(ctx context.Context) types.CapitalState {
	return c.ledger.Refresh(ctx)
}

// ResetDailyGuard clears the attempt guard so failed symbols can be retried.
// Symbols with a buy still in flight stay guarded, and the store checks still
// block symbols with open positions or active triggers.
func (c *Coordinator) ResetDailyGuard(ctx context.Context) {
	n := c.guard.Reset()
	logger.Info(ctx, "Attempt guard reset", "cleared", n)
}

// Status reports the operator view of the coordinator.
func (c *Coordinator) Status(ctx context.Context) (types.EngineStatus, error) {
	avail, capital, err := c.ledger.Available(ctx)
	if err != nil {
		return types.EngineStatus{}, err
	}
	all, err := c.store.ListPositions(ctx)
	if err != nil {
		return types.EngineStatus{}, err
	}
	return types.EngineStatus{
		DryRun:         c.p.DryRun,
		Watchlist:      append([]string(nil), c.p.Watchlist...),
		Capital:        capital,
		Available:      avail,
		PerTradeBudget: capital.PerTradeBudget(),
		Guarded:        c.guard.Snapshot(),
		Counts:         countByStatus(all),
	}, nil
}

func countByStatus(ps []types.Position) map[types.PositionStatus]int {
	counts := make(map[types.PositionStatus]int)
	for _, p := range ps {
		counts[p.Status]++
	}
	return counts
}
