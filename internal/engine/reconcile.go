package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// ReconcileConditionalOrders brings every locally ACTIVE conditional order in
// line with the broker. Each status change is a compare-and-set, so follow-up
// actions (opening a position for a filled buy trigger, closing one for a
// filled sell trigger) run at most once however often this is called.
func (c *Coordinator) ReconcileConditionalOrders(ctx context.Context) error {
	active, err := c.store.ListActiveConditionalOrders(ctx)
	if err != nil {
		return fmt.Errorf("list active conditionals: %w", err)
	}
	if len(active) == 0 {
		return nil
	}

	var remote map[string]types.RemoteConditionalOrder
	for _, o := range active {
		if !o.Meta.DryRun {
			list, err := c.broker.ListConditionalOrders(ctx)
			if err != nil {
				return fmt.Errorf("list broker conditionals: %w", err)
			}
			remote = make(map[string]types.RemoteConditionalOrder, len(list))
			for _, r := range list {
				remote[r.RemoteID] = r
			}
			break
		}
	}

	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, o := range active {
		var (
			status types.ConditionalStatus
			last   *decimal.Decimal
		)
		if o.Meta.DryRun {
			status, last = c.simulatedStatus(ctx, o)
		} else {
			r, ok := remote[o.RemoteID]
			if !ok {
				logger.Warn(ctx, "Conditional order missing at broker, leaving active", "symbol", o.Symbol, "remote_id", o.RemoteID)
				continue
			}
			status = r.Status
		}
		if status == types.CondActive || status == "" {
			continue
		}

		changed, err := c.store.TransitionConditional(ctx, o.RemoteID, types.CondActive, status, last)
		if err != nil {
			errs = append(errs, fmt.Errorf("transition %s: %w", o.RemoteID, err))
			continue
		}
		if !changed {
			continue
		}
		metrics.ConditionalTransitions.WithLabelValues(string(status)).Inc()
		logger.Info(ctx, "Conditional order changed at broker", "symbol", o.Symbol, "remote_id", o.RemoteID, "side", string(o.Meta.Side), "status", string(status))

		switch {
		case status == types.CondCancelled:
			c.onConditionalCancelled(ctx, o)
		case o.Meta.Side == types.OrderBuy:
			if err := c.onBuyTriggered(ctx, o); err != nil {
				errs = append(errs, err)
			}
		case o.Meta.Side == types.OrderSell:
			c.onSellTriggered(ctx, o)
		}
	}
	return errors.Join(errs...)
}

// simulatedStatus fires a dry-run trigger once the live quote crosses it.
func (c *Coordinator) simulatedStatus(ctx context.Context, o types.ConditionalOrder) (types.ConditionalStatus, *decimal.Decimal) {
	q, err := c.broker.Quote(ctx, o.Symbol)
	if err != nil || !q.LastPrice.IsPositive() {
		return types.CondActive, nil
	}
	crossed := q.LastPrice.GreaterThanOrEqual(o.TriggerPrice)
	if o.Meta.Side == types.OrderBuy {
		crossed = q.LastPrice.LessThanOrEqual(o.TriggerPrice)
	}
	if !crossed {
		return types.CondActive, nil
	}
	return types.CondTriggered, decPtr(q.LastPrice)
}

// onBuyTriggered turns a filled buy trigger into a BOUGHT position guarded by
// a protective sell.
func (c *Coordinator) onBuyTriggered(ctx context.Context, o types.ConditionalOrder) error {
	price := o.TriggerPrice
	if o.LimitPrice != nil && o.LimitPrice.IsPositive() {
		price = *o.LimitPrice
	}
	product := o.Meta.Product
	if product == "" {
		product = c.defaultProduct()
	}

	c.recordTrade(ctx, types.TradeRecord{
		Symbol: o.Symbol, Quantity: o.Quantity, Side: types.SideBuyTriggered, Price: price,
		OrderID: o.RemoteID, Simulated: o.Meta.DryRun,
		Meta: types.TradeMeta{TriggerID: o.RemoteID, Product: product, PrevClose: o.Meta.PrevClose},
	})
	logger.Trade(ctx, o.Symbol, string(types.SideBuyTriggered), o.Quantity, price.String(), o.RemoteID, "dry_run", o.Meta.DryRun)

	pos := c.newPosition(o.Symbol, o.Quantity, price, product)
	if err := c.store.UpsertPosition(ctx, pos); err != nil {
		c.notify(ctx, "BUY TRIGGERED %s but position not saved: %v", o.Symbol, err)
		return fmt.Errorf("%w: position %s not saved: %w", types.ErrPartialDegradation, o.Symbol, err)
	}
	c.guard.Add(o.Symbol)
	metrics.PositionTransitions.WithLabelValues(string(types.StatusBought)).Inc()

	if o.Meta.DryRun {
		c.notify(ctx, "DRY RUN BUY TRIGGERED %s: %d @ %s (target %s)", o.Symbol, o.Quantity, price.StringFixed(2), pos.TargetPrice.StringFixed(2))
		return nil
	}
	if _, err := c.placeProtectiveSell(ctx, pos, o.RemoteID); err != nil {
		logger.Risk(ctx, o.Symbol, "UNPROTECTED_POSITION", "trigger_id", o.RemoteID, "error", err.Error())
		c.notify(ctx, "BUY TRIGGERED %s: %d @ %s\nWARNING: protective sell not placed: %v", o.Symbol, o.Quantity, price.StringFixed(2), err)
		return err
	}
	c.notify(ctx, "BUY TRIGGERED %s: %d @ %s, target %s", o.Symbol, o.Quantity, price.StringFixed(2), pos.TargetPrice.StringFixed(2))
	return nil
}

// onSellTriggered closes the position a protective sell belonged to.
func (c *Coordinator) onSellTriggered(ctx context.Context, o types.ConditionalOrder) {
	price := o.TriggerPrice
	if o.LimitPrice != nil {
		price = *o.LimitPrice
	}
	c.recordTrade(ctx, types.TradeRecord{
		Symbol: o.Symbol, Quantity: o.Quantity, Side: types.SideSell, Price: price,
		OrderID: o.RemoteID, Simulated: o.Meta.DryRun,
		Meta: types.TradeMeta{TriggerID: o.RemoteID, Product: o.Meta.Product, Note: "protective trigger executed"},
	})
	logger.Trade(ctx, o.Symbol, string(types.SideSell), o.Quantity, price.String(), o.RemoteID)

	changed, err := c.store.TransitionPosition(ctx, o.Symbol, types.StatusTargetHit, types.StatusBought, types.StatusAlerted)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to close position after sell trigger", err, "symbol", o.Symbol)
		return
	}
	if changed {
		metrics.PositionTransitions.WithLabelValues(string(types.StatusTargetHit)).Inc()
	}
	c.guard.Release(o.Symbol)
	c.notify(ctx, "TARGET SOLD %s: %d @ %s via trigger %s", o.Symbol, o.Quantity, price.StringFixed(2), o.RemoteID)
}

func (c *Coordinator) onConditionalCancelled(ctx context.Context, o types.ConditionalOrder) {
	if o.Meta.Side == types.OrderBuy {
		if open, err := c.store.HasOpenPosition(ctx, o.Symbol); err == nil && !open {
			c.guard.Release(o.Symbol)
		}
		c.notify(ctx, "Buy trigger %s for %s was cancelled at the broker", o.RemoteID, o.Symbol)
		return
	}
	// A position without its protective sell needs an operator.
	if open, err := c.store.HasOpenPosition(ctx, o.Symbol); err == nil && open {
		logger.Risk(ctx, o.Symbol, "UNPROTECTED_POSITION", "trigger_id", o.RemoteID, "reason", "cancelled at broker")
		c.notify(ctx, "WARNING protective sell %s for %s was cancelled at the broker", o.RemoteID, o.Symbol)
	}
}
