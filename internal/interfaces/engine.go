package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

// Coordinator is the only writer of positions and conditional orders.
type Coordinator interface {
	ExecuteBuy(ctx context.Context, symbol string, dryRun bool) types.BuyOutcome
	ExecuteSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal, dryRun bool) (types.SellOutcome, error)
	EvaluateOpenPosition(ctx context.Context, p types.Position, currentPrice decimal.Decimal) (types.PositionStatus, error)
	PlaceBuyTrigger(ctx context.Context, symbol string, dryRun bool) (types.ConditionalOrder, error)
	CancelConditionalOrder(ctx context.Context, remoteID string) error
	ReconcileConditionalOrders(ctx context.Context) error
	RunHousekeeping(ctx context.Context) error
	RefreshCapital(ctx context.Context) types.CapitalState
	ResetDailyGuard(ctx context.Context)
	Status(ctx context.Context) (types.EngineStatus, error)
}

// Commands is the surface offered to operators (chat bot, dashboards).
type Commands interface {
	TriggerBuy(ctx context.Context, symbol string) types.BuyOutcome
	TriggerSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal) (types.SellOutcome, error)
	TriggerBuyOrder(ctx context.Context, symbol string) (types.ConditionalOrder, error)
	CancelConditionalOrder(ctx context.Context, remoteID string) error
	RefreshCapital(ctx context.Context) types.CapitalState
	ResetDailyGuard(ctx context.Context)
	ListPositions(ctx context.Context) ([]types.Position, error)
	ListConditionalOrders(ctx context.Context) ([]types.ConditionalOrder, error)
	ListRecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error)
	Status(ctx context.Context) (types.EngineStatus, error)
}
