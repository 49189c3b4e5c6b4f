package brokerobs

import (
	"context"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/trace"
	"etf-gap-trader/internal/types"
)

// observableBroker wraps a Broker with observability (logging & tracing)
type observableBroker struct {
	broker interfaces.Broker
}

// Compile-time interface check
var _ interfaces.Broker = (*observableBroker)(nil)

// Wrap wraps a broker with observability middleware
func Wrap(broker interfaces.Broker) interfaces.Broker {
	return &observableBroker{
		broker: broker,
	}
}

func (ob *observableBroker) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.Quote", symbol)
	defer span.End()

	q, err := ob.broker.Quote(ctx, symbol)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch quote", err, "symbol", symbol)
		return types.Quote{}, err
	}

	logger.DebugSkip(ctx, 1, "Quote fetched",
		"symbol", symbol,
		"last_price", q.LastPrice.String(),
		"prev_close", q.PreviousClose.String(),
	)
	return q, nil
}

func (ob *observableBroker) Balance(ctx context.Context) (decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "broker.Balance")
	defer span.End()

	bal, err := ob.broker.Balance(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch balance", err)
		return decimal.Zero, err
	}

	logger.DebugSkip(ctx, 1, "Balance fetched", "balance", bal.String())
	return bal, nil
}

// PlaceOrder places an order with observability
func (ob *observableBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.PlaceOrder", req.Symbol)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing order",
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Qty,
		"product", req.Product,
		"tag", req.Tag,
	)

	orderID, err := ob.broker.PlaceOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"symbol", req.Symbol,
			"side", req.Side,
			"product", req.Product,
			"qty", req.Qty,
		)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"symbol", req.Symbol,
		"order_id", orderID,
	)
	return orderID, nil
}

func (ob *observableBroker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	ctx, span := trace.StartSpan(ctx, "broker.OrderStatus")
	defer span.End()

	st, err := ob.broker.OrderStatus(ctx, orderID)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to fetch order status", err, "order_id", orderID)
		return types.OrderStatus{}, err
	}

	logger.InfoSkip(ctx, 1, "Order status",
		"order_id", orderID,
		"status", st.Status,
		"filled_qty", st.FilledQty,
		"avg_price", st.AvgPrice.String(),
	)
	return st, nil
}

func (ob *observableBroker) PlaceConditionalOrder(ctx context.Context, req types.ConditionalOrderRequest) (string, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "broker.PlaceConditionalOrder", req.Symbol)
	defer span.End()

	logger.InfoSkip(ctx, 1, "Placing conditional order",
		"symbol", req.Symbol,
		"side", req.Side,
		"trigger", req.TriggerPrice.String(),
		"qty", req.Qty,
		"product", req.Product,
	)

	remoteID, err := ob.broker.PlaceConditionalOrder(ctx, req)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place conditional order", err, "symbol", req.Symbol, "side", req.Side)
		return "", err
	}

	logger.InfoSkip(ctx, 1, "Conditional order placed", "symbol", req.Symbol, "remote_id", remoteID)
	return remoteID, nil
}

func (ob *observableBroker) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	ctx, span := trace.StartSpan(ctx, "broker.CancelConditionalOrder")
	defer span.End()

	if err := ob.broker.CancelConditionalOrder(ctx, remoteID); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to cancel conditional order", err, "remote_id", remoteID)
		return err
	}

	logger.InfoSkip(ctx, 1, "Conditional order cancelled", "remote_id", remoteID)
	return nil
}

func (ob *observableBroker) ListConditionalOrders(ctx context.Context) ([]types.RemoteConditionalOrder, error) {
	ctx, span := trace.StartSpan(ctx, "broker.ListConditionalOrders")
	defer span.End()

	orders, err := ob.broker.ListConditionalOrders(ctx)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to list conditional orders", err)
		return nil, err
	}

	logger.DebugSkip(ctx, 1, "Conditional orders listed", "count", len(orders))
	return orders, nil
}
