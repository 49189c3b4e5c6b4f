package engine

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// CapitalLedger tracks the account balance and the split between deployment
// and reserve. Allocated capital is never cached; it is recomputed from the
// position store on every read.
type CapitalLedger struct {
	broker    interfaces.Broker
	positions interfaces.PositionStore
	now       func() time.Time

	mu    sync.Mutex
	state types.CapitalState
}

// NewCapitalLedger creates a ledger with the configured percentages. The total
// is zero until the first successful Refresh.
func NewCapitalLedger(brk interfaces.Broker, positions interfaces.PositionStore, deploymentPct, perTradePct decimal.Decimal) *CapitalLedger {
	return &CapitalLedger{
		broker:    brk,
		positions: positions,
		now:       time.Now,
		state: types.CapitalState{
			DeploymentPct: deploymentPct,
			ReservePct:    hundred.Sub(deploymentPct),
			PerTradePct:   perTradePct,
		},
	}
}

// Refresh queries the broker balance. A failed or non-positive reading keeps
// the prior total; the call never fails.
//
// Returns:
//   - state: the capital view after the refresh, allocated recomputed
func (l *CapitalLedger) Refresh(ctx context.Context) types.CapitalState {
	bal, err := l.broker.Balance(ctx)
	switch {
	case err != nil:
		logger.Warn(ctx, "Capital refresh failed, keeping prior balance", "error", err)
	case !bal.IsPositive():
		logger.Warn(ctx, "Broker reported non-positive balance, keeping prior balance", "balance", bal.String())
	default:
		l.mu.Lock()
		l.state.TotalCapital = bal
		l.state.LastRefreshed = l.now()
		l.mu.Unlock()
		metrics.SetGauge(metrics.TotalCapital, bal)
	}

	st, err := l.Snapshot(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to compute allocated capital", err)
	}
	logger.Debug(ctx, "Capital refreshed",
		"total", st.TotalCapital.StringFixed(2),
		"deployment", st.DeploymentCapital().StringFixed(2),
		"allocated", st.AllocatedCapital.StringFixed(2),
		"per_trade", st.PerTradeBudget().StringFixed(2),
	)
	return st
}

// Snapshot returns the current capital view, refreshing from the broker once
// if no balance has been fetched yet.
func (l *CapitalLedger) Snapshot(ctx context.Context) (types.CapitalState, error) {
	l.mu.Lock()
	st := l.state
	l.mu.Unlock()

	if st.LastRefreshed.IsZero() {
		if bal, err := l.broker.Balance(ctx); err == nil && bal.IsPositive() {
			l.mu.Lock()
			l.state.TotalCapital = bal
			l.state.LastRefreshed = l.now()
			st = l.state
			l.mu.Unlock()
			metrics.SetGauge(metrics.TotalCapital, bal)
		}
	}

	open, err := l.positions.ListOpenPositions(ctx)
	if err != nil {
		return st, err
	}
	allocated := decimal.Zero
	for _, p := range open {
		allocated = allocated.Add(p.Cost())
	}
	st.AllocatedCapital = allocated
	metrics.SetGauge(metrics.AvailableCapital, st.DeploymentCapital().Sub(allocated))
	return st, nil
}

// Available returns deploymentCapital minus allocated capital, which may be
// negative after price moves or manual buys.
func (l *CapitalLedger) Available(ctx context.Context) (decimal.Decimal, types.CapitalState, error) {
	st, err := l.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, st, err
	}
	return st.DeploymentCapital().Sub(st.AllocatedCapital), st, nil
}
