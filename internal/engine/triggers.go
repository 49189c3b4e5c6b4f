package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

const dryRunTriggerPrefix = "DRYRUN-GTT-"

// PlaceBuyTrigger parks a buy-on-dip trigger at prevClose × (1 - gap%) so the
// broker buys without the monitor watching. The same gate as ExecuteBuy
// applies.
func (c *Coordinator) PlaceBuyTrigger(ctx context.Context, symbol string, dryRun bool) (types.ConditionalOrder, error) {
	if !c.begin() {
		return types.ConditionalOrder{}, errors.New("coordinator is shutting down")
	}
	defer c.inflight.Done()

	if reason, err := c.storeGate(ctx, symbol); reason != types.SkipNone {
		return types.ConditionalOrder{}, gateError(symbol, reason, err)
	}
	if !c.guard.TryAcquire(symbol) {
		return types.ConditionalOrder{}, gateError(symbol, types.SkipAlreadyAttempted, nil)
	}
	release := true
	defer func() { c.guard.Finish(symbol, release) }()

	q, err := c.broker.Quote(ctx, symbol)
	if err != nil {
		return types.ConditionalOrder{}, fmt.Errorf("quote %s: %w: %w", symbol, types.ErrDataUnavailable, err)
	}
	prev := c.prevCloseFor(symbol, q)
	if !prev.IsPositive() || !q.LastPrice.IsPositive() {
		return types.ConditionalOrder{}, fmt.Errorf("%s: %w", symbol, types.ErrDataUnavailable)
	}
	trigger := roundToTick(pctBelow(prev, c.p.BuyGapPct), c.p.MinTick)

	avail, capital, err := c.ledger.Available(ctx)
	if err != nil {
		return types.ConditionalOrder{}, fmt.Errorf("capital: %w: %w", types.ErrDataUnavailable, err)
	}
	budget := capital.PerTradeBudget()
	if avail.LessThan(budget) {
		return types.ConditionalOrder{}, fmt.Errorf("available %s < budget %s: %w", avail.StringFixed(2), budget.StringFixed(2), types.ErrInsufficientCapital)
	}
	// Sized at the current price; a budget below one unit still parks a
	// single-unit trigger.
	qty := max(QuantityFor(symbol, q.LastPrice, budget), 1)

	release = false
	ctx = context.WithoutCancel(ctx)
	target := roundToTick(pctAbove(trigger, c.p.SellTargetPct), c.p.MinTick)
	stop := roundToTick(pctBelow(trigger, c.p.LossAlertPct), c.p.MinTick)
	tradeMeta := types.TradeMeta{PrevClose: decPtr(prev), GapPct: decPtr(c.p.BuyGapPct), RequestedQty: qty}

	var remoteID, product string
	if dryRun {
		remoteID = dryRunTriggerPrefix + strings.ToUpper(uuid.NewString()[:8])
		product = c.defaultProduct()
		tradeMeta.Note = "dry run"
	} else {
		var errs []error
		for _, p := range c.p.Products {
			id, perr := c.broker.PlaceConditionalOrder(ctx, types.ConditionalOrderRequest{
				Symbol:       symbol,
				Side:         types.OrderBuy,
				Kind:         types.KindMarket,
				TriggerPrice: trigger,
				LastPrice:    q.LastPrice,
				Qty:          qty,
				Product:      p,
			})
			tradeMeta.Attempts = append(tradeMeta.Attempts, types.OrderAttempt{Product: p, OrderID: id, Error: errString(perr)})
			if perr == nil {
				metrics.Orders.WithLabelValues("BUY_TRIGGER", p, "placed").Inc()
				remoteID, product = id, p
				break
			}
			errs = append(errs, perr)
			if !isRejected(perr) {
				metrics.Orders.WithLabelValues("BUY_TRIGGER", p, "error").Inc()
				break
			}
			metrics.Orders.WithLabelValues("BUY_TRIGGER", p, "rejected").Inc()
		}
		if remoteID == "" {
			err := errors.Join(errs...)
			tradeMeta.Error = errString(err)
			c.recordTrade(ctx, types.TradeRecord{
				Symbol: symbol, Quantity: qty, Side: types.SideBuyFailed, Price: trigger, Meta: tradeMeta,
			})
			c.notify(ctx, "BUY TRIGGER FAILED %s: %v", symbol, err)
			return types.ConditionalOrder{}, fmt.Errorf("buy trigger %s: %w", symbol, err)
		}
	}
	tradeMeta.Product = product
	tradeMeta.TriggerID = remoteID

	now := c.now()
	o := types.ConditionalOrder{
		Symbol:       symbol,
		RemoteID:     remoteID,
		TriggerType:  types.TriggerSingle,
		TriggerPrice: trigger,
		LastPrice:    decPtr(q.LastPrice),
		OrderKind:    types.KindMarket,
		Quantity:     qty,
		Condition:    "<=",
		Status:       types.CondActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		Meta: types.ConditionalMeta{
			Side:        types.OrderBuy,
			Product:     product,
			TargetPrice: decPtr(target),
			StopLoss:    decPtr(stop),
			PrevClose:   decPtr(prev),
			DryRun:      dryRun,
		},
	}
	if err := c.store.SaveConditionalOrder(ctx, o); err != nil {
		logger.ErrorWithErr(ctx, "Buy trigger placed but not tracked", err, "symbol", symbol, "remote_id", remoteID)
		c.notify(ctx, "WARNING buy trigger %s for %s placed but not tracked: %v", remoteID, symbol, err)
		return o, fmt.Errorf("%w: trigger %s not tracked: %w", types.ErrPartialDegradation, remoteID, err)
	}
	metrics.ConditionalTransitions.WithLabelValues(string(types.CondActive)).Inc()
	c.recordTrade(ctx, types.TradeRecord{
		Symbol: symbol, Quantity: qty, Side: types.SideBuyTriggerPlaced, Price: trigger,
		OrderID: remoteID, Simulated: dryRun, Meta: tradeMeta,
	})
	logger.Decision(ctx, symbol, "BUY_TRIGGER", "buy on dip",
		"trigger", trigger.String(),
		"prev_close", prev.String(),
		"qty", qty,
		"remote_id", remoteID,
	)
	c.notify(ctx, "BUY TRIGGER %s: %d @ <= %s (prev close %s) id=%s", symbol, qty, trigger.StringFixed(2), prev.StringFixed(2), remoteID)
	return o, nil
}

// PlaceBuyTriggers places a buy trigger for every symbol, continuing past
// failures. Symbols that are gated (open, active, attempted) are left out of
// the result.
func (c *Coordinator) PlaceBuyTriggers(ctx context.Context, symbols []string, dryRun bool) (map[string]types.ConditionalOrder, error) {
	placed := make(map[string]types.ConditionalOrder, len(symbols))
	var errs []error
	for _, s := range symbols {
		o, err := c.PlaceBuyTrigger(ctx, s, dryRun)
		if err != nil {
			var ge *GateError
			if errors.As(err, &ge) && ge.Err == nil {
				logger.Debug(ctx, "Buy trigger skipped", "symbol", s, "reason", string(ge.Reason))
				continue
			}
			logger.Warn(ctx, "Buy trigger not placed", "symbol", s, "error", err)
			errs = append(errs, err)
			continue
		}
		placed[s] = o
	}
	return placed, errors.Join(errs...)
}

// CancelConditionalOrder cancels an ACTIVE conditional order by remote id.
// Cancelling a buy trigger frees the symbol for new attempts.
func (c *Coordinator) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	o, err := c.store.GetConditionalOrder(ctx, remoteID)
	if err != nil {
		return err
	}
	if o.Status != types.CondActive {
		return fmt.Errorf("conditional %s is %s: %w", remoteID, o.Status, types.ErrOrderRejected)
	}
	if err := c.cancelConditional(context.WithoutCancel(ctx), o); err != nil {
		return err
	}
	if o.Meta.Side == types.OrderBuy {
		if open, err := c.store.HasOpenPosition(ctx, o.Symbol); err == nil && !open {
			c.guard.Release(o.Symbol)
		}
	}
	c.notify(ctx, "CANCELLED %s trigger %s for %s", o.Meta.Side, remoteID, o.Symbol)
	return nil
}

// GateError reports why a symbol could not be acted on.
type GateError struct {
	Symbol string
	Reason types.SkipReason
	Err    error
}

func (e *GateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Symbol, e.Reason)
}

func (e *GateError) Unwrap() error { return e.Err }

func gateError(symbol string, reason types.SkipReason, err error) error {
	return &GateError{Symbol: symbol, Reason: reason, Err: err}
}
