package engineobs

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/trace"
	"etf-gap-trader/internal/types"
)

type observableCoordinator struct {
	coord interfaces.Coordinator
}

var _ interfaces.Coordinator = (*observableCoordinator)(nil)

func Wrap(coord interfaces.Coordinator) interfaces.Coordinator {
	return &observableCoordinator{
		coord: coord,
	}
}

func (oc *observableCoordinator) ExecuteBuy(ctx context.Context, symbol string, dryRun bool) types.BuyOutcome {
	ctx, span := trace.StartSymbolSpan(ctx, "engine.ExecuteBuy", symbol)
	defer span.End()

	start := time.Now()
	out := oc.coord.ExecuteBuy(ctx, symbol, dryRun)

	switch {
	case out.Status == types.BuyFailed:
		logger.ErrorWithErrSkip(ctx, 1, "Buy attempt failed", out.Err,
			"symbol", symbol,
			"order_id", out.OrderID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	case out.Status == types.BuySkipped:
		logger.DebugSkip(ctx, 1, "Buy attempt skipped",
			"symbol", symbol,
			"reason", string(out.Skip),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	default:
		logger.InfoSkip(ctx, 1, "Buy attempt completed",
			"symbol", symbol,
			"status", string(out.Status),
			"order_id", out.OrderID,
			"product", out.Product,
			"qty", out.Quantity,
			"price", out.Price.String(),
			"degraded", out.Degraded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return out
}

func (oc *observableCoordinator) ExecuteSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal, dryRun bool) (types.SellOutcome, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "engine.ExecuteSell", symbol)
	defer span.End()

	start := time.Now()

	logger.InfoSkip(ctx, 1, "Starting manual sell",
		"symbol", symbol,
		"qty", qty,
		"kind", string(kind),
		"dry_run", dryRun,
	)

	out, err := oc.coord.ExecuteSell(ctx, symbol, qty, kind, price, dryRun)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Manual sell failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return out, err
	}

	logger.InfoSkip(ctx, 1, "Manual sell completed",
		"symbol", symbol,
		"order_id", out.OrderID,
		"closed", out.Closed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (oc *observableCoordinator) EvaluateOpenPosition(ctx context.Context, p types.Position, currentPrice decimal.Decimal) (types.PositionStatus, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "engine.EvaluateOpenPosition", p.Symbol)
	defer span.End()

	st, err := oc.coord.EvaluateOpenPosition(ctx, p, currentPrice)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Position evaluation failed", err, "symbol", p.Symbol)
		return st, err
	}
	if st != p.Status {
		logger.InfoSkip(ctx, 1, "Position status changed",
			"symbol", p.Symbol,
			"from", string(p.Status),
			"to", string(st),
			"price", currentPrice.String(),
		)
	}
	return st, nil
}

func (oc *observableCoordinator) PlaceBuyTrigger(ctx context.Context, symbol string, dryRun bool) (types.ConditionalOrder, error) {
	ctx, span := trace.StartSymbolSpan(ctx, "engine.PlaceBuyTrigger", symbol)
	defer span.End()

	start := time.Now()
	o, err := oc.coord.PlaceBuyTrigger(ctx, symbol, dryRun)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Buy trigger not placed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return o, err
	}

	logger.InfoSkip(ctx, 1, "Buy trigger placed",
		"symbol", symbol,
		"remote_id", o.RemoteID,
		"trigger", o.TriggerPrice.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return o, nil
}

func (oc *observableCoordinator) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	ctx, span := trace.StartSpan(ctx, "engine.CancelConditionalOrder")
	defer span.End()

	if err := oc.coord.CancelConditionalOrder(ctx, remoteID); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Cancel failed", err, "remote_id", remoteID)
		return err
	}
	logger.InfoSkip(ctx, 1, "Conditional order cancelled", "remote_id", remoteID)
	return nil
}

func (oc *observableCoordinator) ReconcileConditionalOrders(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "engine.ReconcileConditionalOrders")
	defer span.End()

	start := time.Now()
	if err := oc.coord.ReconcileConditionalOrders(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Reconcile failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
	logger.DebugSkip(ctx, 1, "Reconcile completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (oc *observableCoordinator) RunHousekeeping(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "engine.RunHousekeeping")
	defer span.End()

	start := time.Now()
	if err := oc.coord.RunHousekeeping(ctx); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Housekeeping failed", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
	logger.DebugSkip(ctx, 1, "Housekeeping completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (oc *observableCoordinator) RefreshCapital(ctx context.Context) types.CapitalState {
	ctx, span := trace.StartSpan(ctx, "engine.RefreshCapital")
	defer span.End()

	st := oc.coord.RefreshCapital(ctx)
	logger.InfoSkip(ctx, 1, "Capital refreshed",
		"total", st.TotalCapital.StringFixed(2),
		"per_trade", st.PerTradeBudget().StringFixed(2),
	)
	return st
}

func (oc *observableCoordinator) ResetDailyGuard(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "engine.ResetDailyGuard")
	defer span.End()

	oc.coord.ResetDailyGuard(ctx)
}

func (oc *observableCoordinator) Status(ctx context.Context) (types.EngineStatus, error) {
	return oc.coord.Status(ctx)
}
