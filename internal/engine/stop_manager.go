package engine

import (
	"context"
	"errors"
	"fmt"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// placeProtectiveSell puts a limit-sell trigger at the position's target,
// rounded to the exchange tick, and mirrors it locally as ACTIVE.
//
// Parameters:
//   - ctx: Context for logging and tracing
//   - pos: The position the trigger protects
//   - parentOrderID: Buy order or trigger that opened the position
//
// Returns:
//   - order: the tracked conditional order
//   - err: wrapped types.ErrPartialDegradation when the position is left
//     without a tracked protective order
func (c *Coordinator) placeProtectiveSell(ctx context.Context, pos types.Position, parentOrderID string) (types.ConditionalOrder, error) {
	target := roundToTick(pos.TargetPrice, c.p.MinTick)
	req := types.ConditionalOrderRequest{
		Symbol:       pos.Symbol,
		Side:         types.OrderSell,
		Kind:         types.KindLimit,
		TriggerPrice: target,
		LimitPrice:   decPtr(target),
		LastPrice:    pos.AvgBuyPrice,
		Qty:          pos.Quantity,
		Product:      pos.ProductType,
	}
	meta := types.TradeMeta{ParentOrderID: parentOrderID, Product: pos.ProductType}

	remoteID, err := c.broker.PlaceConditionalOrder(ctx, req)
	if err != nil {
		meta.Error = err.Error()
		metrics.Orders.WithLabelValues("SELL_TRIGGER", pos.ProductType, "error").Inc()
		c.recordTrade(ctx, types.TradeRecord{
			Symbol: pos.Symbol, Quantity: pos.Quantity, Side: types.SideSellTriggerFailed,
			Price: target, OrderID: parentOrderID, Meta: meta,
		})
		logger.ErrorWithErr(ctx, "Protective sell trigger not placed", err, "symbol", pos.Symbol, "target", target.String())
		return types.ConditionalOrder{}, fmt.Errorf("%w: protective sell: %w", types.ErrPartialDegradation, err)
	}
	metrics.Orders.WithLabelValues("SELL_TRIGGER", pos.ProductType, "placed").Inc()

	now := c.now()
	o := types.ConditionalOrder{
		Symbol:       pos.Symbol,
		RemoteID:     remoteID,
		TriggerType:  types.TriggerSingle,
		TriggerPrice: target,
		LastPrice:    decPtr(pos.AvgBuyPrice),
		OrderKind:    types.KindLimit,
		Quantity:     pos.Quantity,
		LimitPrice:   decPtr(target),
		Condition:    ">=",
		Status:       types.CondActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Meta: types.ConditionalMeta{
			Side:        types.OrderSell,
			Product:     pos.ProductType,
			TargetPrice: decPtr(target),
		},
	}
	if err := c.store.SaveConditionalOrder(ctx, o); err != nil {
		logger.ErrorWithErr(ctx, "Protective sell placed but not tracked", err, "symbol", pos.Symbol, "trigger_id", remoteID)
		return o, fmt.Errorf("%w: trigger %s placed but not tracked: %w", types.ErrPartialDegradation, remoteID, err)
	}
	metrics.ConditionalTransitions.WithLabelValues(string(types.CondActive)).Inc()
	meta.TriggerID = remoteID
	c.recordTrade(ctx, types.TradeRecord{
		Symbol: pos.Symbol, Quantity: pos.Quantity, Side: types.SideSellTriggerPlaced,
		Price: target, OrderID: remoteID, Meta: meta,
	})
	logger.Info(ctx, "Protective sell trigger placed", "symbol", pos.Symbol, "trigger_id", remoteID, "target", target.String(), "qty", pos.Quantity)
	return o, nil
}

// cancelConditional cancels o at the broker (unless simulated) and marks it
// CANCELLED locally. An order the broker no longer knows is still cancelled
// locally.
func (c *Coordinator) cancelConditional(ctx context.Context, o types.ConditionalOrder) error {
	if !o.Meta.DryRun {
		if err := c.broker.CancelConditionalOrder(ctx, o.RemoteID); err != nil && !errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("cancel %s at broker: %w", o.RemoteID, err)
		}
	}
	if err := c.store.CancelConditionalOrder(ctx, o.RemoteID); err != nil {
		return fmt.Errorf("cancel %s locally: %w", o.RemoteID, err)
	}
	metrics.ConditionalTransitions.WithLabelValues(string(types.CondCancelled)).Inc()
	logger.Info(ctx, "Conditional order cancelled", "symbol", o.Symbol, "remote_id", o.RemoteID, "side", string(o.Meta.Side))
	return nil
}

// activeFor returns the ACTIVE conditional order for symbol on side, if any.
func (c *Coordinator) activeFor(ctx context.Context, symbol string, side types.OrderSide) (types.ConditionalOrder, bool, error) {
	active, err := c.store.ListActiveConditionalOrders(ctx)
	if err != nil {
		return types.ConditionalOrder{}, false, err
	}
	for _, o := range active {
		if o.Symbol == symbol && o.Meta.Side == side {
			return o, true, nil
		}
	}
	return types.ConditionalOrder{}, false, nil
}
