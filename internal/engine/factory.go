package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/store"
)

// Params are the strategy and execution knobs the coordinator needs, already
// converted to decimal.
type Params struct {
	DryRun         bool
	Watchlist      []string
	BuyGapPct      decimal.Decimal
	SellTargetPct  decimal.Decimal
	LossAlertPct   decimal.Decimal
	Products       []string
	FillCheckDelay time.Duration
	MinTick        decimal.Decimal
}

func ParamsFromConfig(cfg *store.Config) Params {
	return Params{
		DryRun:         cfg.DryRun(),
		Watchlist:      append([]string(nil), cfg.Watchlist...),
		BuyGapPct:      decimal.NewFromFloat(cfg.Strategy.BuyGapPct),
		SellTargetPct:  decimal.NewFromFloat(cfg.Strategy.SellTargetPct),
		LossAlertPct:   decimal.NewFromFloat(cfg.Strategy.LossAlertPct),
		Products:       append([]string(nil), cfg.Execution.Products...),
		FillCheckDelay: time.Duration(cfg.Execution.FillCheckDelayMs) * time.Millisecond,
		MinTick:        decimal.NewFromFloat(cfg.Execution.MinTick),
	}
}

// New builds the coordinator and its capital ledger from configuration.
func New(cfg *store.Config, brk interfaces.Broker, st interfaces.Store, n interfaces.Notifier) *Coordinator {
	ledger := NewCapitalLedger(brk, st,
		decimal.NewFromFloat(cfg.Capital.DeploymentPct),
		decimal.NewFromFloat(cfg.Capital.PerTradePct))
	return NewCoordinator(ParamsFromConfig(cfg), brk, st, ledger, n)
}
