package interfaces

import (
	"context"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

// Broker is the single trading venue boundary. Every call may fail with a
// wrapped types.ErrTransport or types.ErrOrderRejected.
type Broker interface {
	Quote(ctx context.Context, symbol string) (types.Quote, error)
	Balance(ctx context.Context) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (orderID string, err error)
	OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error)
	PlaceConditionalOrder(ctx context.Context, req types.ConditionalOrderRequest) (remoteID string, err error)
	CancelConditionalOrder(ctx context.Context, remoteID string) error
	ListConditionalOrders(ctx context.Context) ([]types.RemoteConditionalOrder, error)
}
