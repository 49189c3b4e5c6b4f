package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// EvaluateOpenPosition compares currentPrice with the position's target and
// loss-alert threshold and applies at most one status transition. It never
// places orders; the protective trigger at the broker does the selling.
func (c *Coordinator) EvaluateOpenPosition(ctx context.Context, p types.Position, currentPrice decimal.Decimal) (types.PositionStatus, error) {
	if !p.Status.IsOpen() || !currentPrice.IsPositive() {
		return p.Status, nil
	}

	if currentPrice.GreaterThanOrEqual(p.TargetPrice) {
		changed, err := c.store.TransitionPosition(ctx, p.Symbol, types.StatusTargetHit, types.StatusBought, types.StatusAlerted)
		if err != nil {
			return p.Status, fmt.Errorf("mark %s target hit: %w", p.Symbol, err)
		}
		if !changed {
			return p.Status, nil
		}
		c.guard.Release(p.Symbol)
		metrics.PositionTransitions.WithLabelValues(string(types.StatusTargetHit)).Inc()
		profit := realizedProfit(p, currentPrice)
		logger.Info(ctx, "Target hit",
			"symbol", p.Symbol,
			"price", currentPrice.String(),
			"target", p.TargetPrice.String(),
			"realized_profit", profit.StringFixed(2),
		)
		c.notify(ctx, "TARGET HIT %s: %s >= %s, realized profit %s", p.Symbol, currentPrice.StringFixed(2), p.TargetPrice.StringFixed(2), profit.StringFixed(2))
		return types.StatusTargetHit, nil
	}

	alertAt := pctBelow(p.AvgBuyPrice, c.p.LossAlertPct)
	if p.Status == types.StatusBought && currentPrice.LessThanOrEqual(alertAt) {
		changed, err := c.store.TransitionPosition(ctx, p.Symbol, types.StatusAlerted, types.StatusBought)
		if err != nil {
			return p.Status, fmt.Errorf("mark %s alerted: %w", p.Symbol, err)
		}
		if !changed {
			return p.Status, nil
		}
		metrics.PositionTransitions.WithLabelValues(string(types.StatusAlerted)).Inc()
		loss := p.AvgBuyPrice.Sub(currentPrice).Mul(decimal.NewFromInt(int64(p.Quantity)))
		logger.Risk(ctx, p.Symbol, "LOSS_ALERT",
			"price", currentPrice.String(),
			"avg_buy_price", p.AvgBuyPrice.String(),
			"threshold", alertAt.String(),
			"unrealized_loss", loss.StringFixed(2),
		)
		c.notify(ctx, "LOSS ALERT %s: %s is %s%% below buy %s (loss %s)",
			p.Symbol, currentPrice.StringFixed(2), GapPct(currentPrice, p.AvgBuyPrice).StringFixed(2), p.AvgBuyPrice.StringFixed(2), loss.StringFixed(2))
		return types.StatusAlerted, nil
	}
	return p.Status, nil
}

// ExecuteSell places a manual market or limit sell. Selling the full open
// quantity closes the position as SOLD and cancels its protective trigger;
// a smaller quantity reduces the position.
func (c *Coordinator) ExecuteSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal, dryRun bool) (types.SellOutcome, error) {
	if qty <= 0 {
		return types.SellOutcome{}, fmt.Errorf("quantity %d: %w", qty, types.ErrOrderRejected)
	}
	if kind == types.KindLimit && (price == nil || !price.IsPositive()) {
		return types.SellOutcome{}, fmt.Errorf("limit sell needs a positive price: %w", types.ErrOrderRejected)
	}
	if !c.begin() {
		return types.SellOutcome{}, errors.New("coordinator is shutting down")
	}
	defer c.inflight.Done()

	// One manual sell per symbol at a time, held from the quantity check
	// until the position is updated.
	if !c.sells.TryAcquire(symbol) {
		return types.SellOutcome{}, fmt.Errorf("sell of %s already in progress: %w", symbol, types.ErrDuplicateActive)
	}
	defer c.sells.Finish(symbol, true)

	pos, err := c.store.GetPosition(ctx, symbol)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return types.SellOutcome{}, fmt.Errorf("load position %s: %w", symbol, err)
	}
	if err == nil && !pos.Status.IsOpen() {
		return types.SellOutcome{}, fmt.Errorf("%s position is already %s: %w", symbol, pos.Status, types.ErrOrderRejected)
	}
	tracked := err == nil
	if tracked && qty > pos.Quantity {
		return types.SellOutcome{}, fmt.Errorf("sell %d of %s exceeds open quantity %d: %w", qty, symbol, pos.Quantity, types.ErrOrderRejected)
	}
	product := "CNC"
	if tracked && pos.ProductType != "" {
		product = pos.ProductType
	}

	side := types.SideSellMarket
	refPrice := decimal.Zero
	if kind == types.KindLimit {
		side = types.SideSellLimit
		refPrice = *price
	} else if q, qerr := c.broker.Quote(ctx, symbol); qerr == nil {
		refPrice = q.LastPrice
	}
	meta := types.TradeMeta{RequestedQty: qty, Product: product}

	var orderID string
	if dryRun {
		orderID = "DRYRUN-SELL-" + uuid.NewString()
		meta.Note = "dry run"
	} else {
		ctx = context.WithoutCancel(ctx)
		orderID, err = c.placeSellOrder(ctx, types.OrderRequest{
			Symbol: symbol, Qty: qty, Kind: kind, Price: price, Product: product, Tag: "MANUAL",
		})
		if err != nil {
			meta.Error = err.Error()
			c.recordTrade(ctx, types.TradeRecord{
				Symbol: symbol, Quantity: qty, Side: types.SideSellFailed, Price: refPrice, Meta: meta,
			})
			c.notify(ctx, "SELL FAILED %s: %v", symbol, err)
			return types.SellOutcome{}, fmt.Errorf("sell %s: %w", symbol, err)
		}
	}

	c.recordTrade(ctx, types.TradeRecord{
		Symbol: symbol, Quantity: qty, Side: side, Price: refPrice,
		OrderID: orderID, Simulated: dryRun, Meta: meta,
	})
	logger.Trade(ctx, symbol, string(side), qty, refPrice.String(), orderID, "dry_run", dryRun)
	out := types.SellOutcome{Symbol: symbol, OrderID: orderID, Quantity: qty, Price: refPrice, Simulated: dryRun}

	if tracked {
		if qty == pos.Quantity {
			out.Closed = c.closePosition(ctx, symbol)
		} else {
			pos.Quantity -= qty
			if err := c.store.UpsertPosition(ctx, pos); err != nil {
				logger.ErrorWithErr(ctx, "Failed to reduce position after sell", err, "symbol", symbol)
			} else {
				c.resizeProtectiveSell(ctx, pos)
			}
		}
	}
	c.notify(ctx, "SELL %s: %d @ %s (%s) id=%s", symbol, qty, refPrice.StringFixed(2), kind, orderID)
	return out, nil
}

// resizeProtectiveSell replaces an ACTIVE protective trigger with one for the
// reduced quantity. Positions without a trigger are left alone.
func (c *Coordinator) resizeProtectiveSell(ctx context.Context, pos types.Position) {
	o, ok, err := c.activeFor(ctx, pos.Symbol, types.OrderSell)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to look up protective trigger", err, "symbol", pos.Symbol)
		return
	}
	if !ok || o.Quantity == pos.Quantity {
		return
	}
	if err := c.cancelConditional(ctx, o); err != nil {
		logger.ErrorWithErr(ctx, "Protective trigger not resized", err, "symbol", pos.Symbol, "remote_id", o.RemoteID)
		c.notify(ctx, "WARNING %s reduced to %d but trigger %s still covers %d: %v", pos.Symbol, pos.Quantity, o.RemoteID, o.Quantity, err)
		return
	}
	if _, err := c.placeProtectiveSell(ctx, pos, o.RemoteID); err != nil {
		logger.Risk(ctx, pos.Symbol, "UNPROTECTED_POSITION", "qty", pos.Quantity, "error", err.Error())
		c.notify(ctx, "WARNING %s: protective sell for remaining %d not placed: %v", pos.Symbol, pos.Quantity, err)
	}
}

// closePosition marks symbol SOLD and cancels its protective trigger.
func (c *Coordinator) closePosition(ctx context.Context, symbol string) bool {
	changed, err := c.store.TransitionPosition(ctx, symbol, types.StatusSold, types.StatusBought, types.StatusAlerted)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to mark position sold", err, "symbol", symbol)
		return false
	}
	if changed {
		metrics.PositionTransitions.WithLabelValues(string(types.StatusSold)).Inc()
	}
	o, ok, err := c.activeFor(ctx, symbol, types.OrderSell)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to look up protective trigger", err, "symbol", symbol)
		return changed
	}
	if ok {
		if err := c.cancelConditional(ctx, o); err != nil {
			logger.ErrorWithErr(ctx, "Protective trigger left active after sell", err, "symbol", symbol, "remote_id", o.RemoteID)
			c.notify(ctx, "WARNING %s sold but trigger %s still active: %v", symbol, o.RemoteID, err)
		}
	}
	return changed
}

// realizedProfit is the gain of exiting the whole position at exit, the price
// the protective sell fills at once the target is crossed.
func realizedProfit(p types.Position, exit decimal.Decimal) decimal.Decimal {
	return exit.Sub(p.AvgBuyPrice).Mul(decimal.NewFromInt(int64(p.Quantity)))
}
