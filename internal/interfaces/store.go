package interfaces

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

type PositionStore interface {
	// GetPosition returns types.ErrNotFound when no row exists.
	GetPosition(ctx context.Context, symbol string) (types.Position, error)
	UpsertPosition(ctx context.Context, p types.Position) error
	HasOpenPosition(ctx context.Context, symbol string) (bool, error)
	ListOpenPositions(ctx context.Context) ([]types.Position, error)
	ListPositions(ctx context.Context) ([]types.Position, error)
	// PurgeTerminal deletes TARGET_HIT and SOLD rows and returns their symbols.
	PurgeTerminal(ctx context.Context) ([]string, error)
	// TransitionPosition moves symbol to status only when its current status is
	// one of from; it reports whether a row changed.
	TransitionPosition(ctx context.Context, symbol string, to types.PositionStatus, from ...types.PositionStatus) (bool, error)
}

type ConditionalOrderTracker interface {
	// SaveConditionalOrder returns types.ErrDuplicateActive when an ACTIVE row
	// already exists for the symbol.
	SaveConditionalOrder(ctx context.Context, o types.ConditionalOrder) error
	UpdateConditionalStatus(ctx context.Context, remoteID string, status types.ConditionalStatus, lastPrice *decimal.Decimal) error
	// TransitionConditional is a compare-and-set on status. Only the caller that
	// observes true may run follow-up actions.
	TransitionConditional(ctx context.Context, remoteID string, from, to types.ConditionalStatus, lastPrice *decimal.Decimal) (bool, error)
	GetConditionalOrder(ctx context.Context, remoteID string) (types.ConditionalOrder, error)
	ListActiveConditionalOrders(ctx context.Context) ([]types.ConditionalOrder, error)
	ListConditionalOrders(ctx context.Context, limit int) ([]types.ConditionalOrder, error)
	HasActiveConditional(ctx context.Context, symbol string) (bool, error)
	CancelConditionalOrder(ctx context.Context, remoteID string) error
}

type TradeLog interface {
	RecordTrade(ctx context.Context, t types.TradeRecord) (int64, error)
	ListRecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error)
	ListTradesSince(ctx context.Context, since time.Time) ([]types.TradeRecord, error)
}

// Store bundles the durable state the coordinator owns.
type Store interface {
	PositionStore
	ConditionalOrderTracker
	TradeLog
	Close() error
}
