package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/types"
)

const conditionalListLimit = 50

// Commands is the operator surface. Writes go through the coordinator; list
// calls read the store directly.
type Commands struct {
	coord  interfaces.Coordinator
	store  interfaces.Store
	dryRun bool
}

var _ interfaces.Commands = (*Commands)(nil)

func NewCommands(coord interfaces.Coordinator, st interfaces.Store, dryRun bool) *Commands {
	return &Commands{coord: coord, store: st, dryRun: dryRun}
}

func (c *Commands) TriggerBuy(ctx context.Context, symbol string) types.BuyOutcome {
	return c.coord.ExecuteBuy(ctx, symbol, c.dryRun)
}

func (c *Commands) TriggerSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal) (types.SellOutcome, error) {
	return c.coord.ExecuteSell(ctx, symbol, qty, kind, price, c.dryRun)
}

func (c *Commands) TriggerBuyOrder(ctx context.Context, symbol string) (types.ConditionalOrder, error) {
	return c.coord.PlaceBuyTrigger(ctx, symbol, c.dryRun)
}

func (c *Commands) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	return c.coord.CancelConditionalOrder(ctx, remoteID)
}

func (c *Commands) RefreshCapital(ctx context.Context) types.CapitalState {
	return c.coord.RefreshCapital(ctx)
}

func (c *Commands) ResetDailyGuard(ctx context.Context) {
	c.coord.ResetDailyGuard(ctx)
}

func (c *Commands) ListPositions(ctx context.Context) ([]types.Position, error) {
	return c.store.ListPositions(ctx)
}

func (c *Commands) ListConditionalOrders(ctx context.Context) ([]types.ConditionalOrder, error) {
	return c.store.ListConditionalOrders(ctx, conditionalListLimit)
}

func (c *Commands) ListRecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	return c.store.ListRecentTrades(ctx, limit)
}

func (c *Commands) Status(ctx context.Context) (types.EngineStatus, error) {
	return c.coord.Status(ctx)
}
