package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/metrics"
	"etf-gap-trader/internal/types"
)

// Coordinator is the single writer of positions, conditional orders and the
// trade log. Everything that buys, sells or changes a status goes through it.
type Coordinator struct {
	p        Params
	broker   interfaces.Broker
	store    interfaces.Store
	ledger   *CapitalLedger
	notifier interfaces.Notifier
	guard    *attemptGuard
	sells    *attemptGuard

	now   func() time.Time
	sleep func(time.Duration)

	cacheMu    sync.Mutex
	prevCloses map[string]types.WatchlistEntry
	sessionDay time.Time

	lifeMu   sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

var _ interfaces.Coordinator = (*Coordinator)(nil)

func NewCoordinator(p Params, brk interfaces.Broker, st interfaces.Store, ledger *CapitalLedger, n interfaces.Notifier) *Coordinator {
	return &Coordinator{
		p:          p,
		broker:     brk,
		store:      st,
		ledger:     ledger,
		notifier:   n,
		guard:      newAttemptGuard(),
		sells:      newAttemptGuard(),
		now:        time.Now,
		sleep:      time.Sleep,
		prevCloses: make(map[string]types.WatchlistEntry),
		sessionDay: midnightIST(time.Now()),
	}
}

// SeedGuard marks every symbol that already holds an open position or an
// ACTIVE conditional order as attempted. Call it once at startup.
func (c *Coordinator) SeedGuard(ctx context.Context) error {
	open, err := c.store.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("seed guard: %w", err)
	}
	active, err := c.store.ListActiveConditionalOrders(ctx)
	if err != nil {
		return fmt.Errorf("seed guard: %w", err)
	}
	for _, p := range open {
		c.guard.Add(p.Symbol)
	}
	for _, o := range active {
		c.guard.Add(o.Symbol)
	}
	metrics.OpenPositions.Set(float64(len(open)))
	logger.Info(ctx, "Attempt guard seeded from store", "open_positions", len(open), "active_conditionals", len(active))
	return nil
}

// begin registers an in-flight operation. It fails once Close has started.
func (c *Coordinator) begin() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// Close stops accepting new buys and waits for in-flight operations to
// finish their broker and store writes, or for ctx to expire.
func (c *Coordinator) Close(ctx context.Context) error {
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain in-flight operations: %w", ctx.Err())
	}
}

// ExecuteBuy runs one gap-checked buy attempt for symbol. It never panics and
// never returns a bare error; the outcome says what happened.
func (c *Coordinator) ExecuteBuy(ctx context.Context, symbol string, dryRun bool) (out types.BuyOutcome) {
	if !c.begin() {
		return types.Skipped(symbol, types.SkipShuttingDown)
	}
	defer c.inflight.Done()
	defer func() {
		metrics.BuyOutcomes.WithLabelValues(string(out.Status), string(out.Skip)).Inc()
	}()

	if reason, err := c.storeGate(ctx, symbol); reason != types.SkipNone {
		out = types.Skipped(symbol, reason)
		out.Err = err
		return out
	}
	if !c.guard.TryAcquire(symbol) {
		return types.Skipped(symbol, types.SkipAlreadyAttempted)
	}
	// Any soft skip before an order is sent gives the symbol back.
	release := true
	defer func() { c.guard.Finish(symbol, release) }()
	// A concurrent caller may have completed a buy between the gate and the
	// acquire.
	if reason, err := c.storeGate(ctx, symbol); reason != types.SkipNone {
		out = types.Skipped(symbol, reason)
		out.Err = err
		return out
	}

	q, err := c.broker.Quote(ctx, symbol)
	if err != nil {
		logger.Warn(ctx, "Quote unavailable, skipping buy", "symbol", symbol, "error", err)
		out = types.Skipped(symbol, types.SkipDataUnavailable)
		out.Err = err
		return out
	}
	prev := c.prevCloseFor(symbol, q)
	if !prev.IsPositive() || !q.LastPrice.IsPositive() {
		logger.Warn(ctx, "Previous close or last price missing, skipping buy", "symbol", symbol)
		return types.Skipped(symbol, types.SkipDataUnavailable)
	}
	gap := GapPct(q.LastPrice, prev)
	if !ShouldBuy(q.LastPrice, prev, c.p.BuyGapPct) {
		logger.Debug(ctx, "No gap down", "symbol", symbol, "last", q.LastPrice.String(), "prev_close", prev.String(), "gap_pct", gap.String())
		return types.Skipped(symbol, types.SkipNoGap)
	}

	avail, capital, err := c.ledger.Available(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Capital check failed, skipping buy", err, "symbol", symbol)
		out = types.Skipped(symbol, types.SkipDataUnavailable)
		out.Err = err
		return out
	}
	budget := capital.PerTradeBudget()
	if avail.LessThan(budget) {
		logger.Risk(ctx, symbol, "INSUFFICIENT_CAPITAL",
			"available", avail.StringFixed(2),
			"per_trade_budget", budget.StringFixed(2),
		)
		return types.Skipped(symbol, types.SkipInsufficientCapital)
	}
	qty := QuantityFor(symbol, q.LastPrice, budget)
	if qty < 1 {
		logger.Debug(ctx, "Budget buys zero units", "symbol", symbol, "budget", budget.StringFixed(2), "last", q.LastPrice.String())
		return types.Skipped(symbol, types.SkipZeroQuantity)
	}

	// From here on an order is attempted and the symbol stays guarded.
	release = false
	logger.Decision(ctx, symbol, "BUY", "gap down",
		"last", q.LastPrice.String(),
		"prev_close", prev.String(),
		"gap_pct", gap.String(),
		"qty", qty,
		"dry_run", dryRun,
	)
	meta := types.TradeMeta{GapPct: &gap, PrevClose: &prev, RequestedQty: qty}

	if dryRun {
		return c.simulateBuy(ctx, symbol, qty, q.LastPrice, meta)
	}
	// Once an order may exist at the broker, cancellation must not cut the
	// follow-up writes short.
	return c.liveBuy(context.WithoutCancel(ctx), symbol, qty, q.LastPrice, meta)
}

func (c *Coordinator) simulateBuy(ctx context.Context, symbol string, qty int, price decimal.Decimal, meta types.TradeMeta) types.BuyOutcome {
	product := c.defaultProduct()
	orderID := "DRYRUN-" + uuid.NewString()
	meta.Product = product
	meta.Note = "dry run"
	c.recordTrade(ctx, types.TradeRecord{
		Symbol: symbol, Quantity: qty, Side: types.SideBuy, Price: price,
		OrderID: orderID, Simulated: true, Meta: meta,
	})
	pos := c.newPosition(symbol, qty, price, product)
	if err := c.store.UpsertPosition(ctx, pos); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist simulated position", err, "symbol", symbol)
		return types.BuyOutcome{Symbol: symbol, Status: types.BuyFailed, OrderID: orderID, Err: err}
	}
	metrics.PositionTransitions.WithLabelValues(string(types.StatusBought)).Inc()
	c.notify(ctx, "DRY RUN BUY %s: %d @ %s (target %s)", symbol, qty, price.StringFixed(2), pos.TargetPrice.StringFixed(2))
	return types.BuyOutcome{
		Symbol: symbol, Status: types.BuySimulated, OrderID: orderID,
		Product: product, Quantity: qty, Price: price,
	}
}

func (c *Coordinator) liveBuy(ctx context.Context, symbol string, qty int, last decimal.Decimal, meta types.TradeMeta) types.BuyOutcome {
	orderID, product, attempts, err := c.placeBuyOrder(ctx, symbol, qty)
	meta.Attempts = attempts
	if err != nil {
		meta.Error = err.Error()
		c.recordTrade(ctx, types.TradeRecord{
			Symbol: symbol, Quantity: qty, Side: types.SideBuyFailed, Price: last, Meta: meta,
		})
		c.notify(ctx, "BUY FAILED %s: %v", symbol, err)
		return types.BuyOutcome{Symbol: symbol, Status: types.BuyFailed, Quantity: qty, Price: last, Err: err}
	}
	meta.Product = product

	c.sleep(c.p.FillCheckDelay)
	st, err := c.broker.OrderStatus(ctx, orderID)
	if err != nil {
		meta.Error = err.Error()
		meta.OrderStatus = string(types.OrderUnknown)
		c.recordTrade(ctx, types.TradeRecord{
			Symbol: symbol, Quantity: qty, Side: types.SideBuyPending, Price: last, OrderID: orderID, Meta: meta,
		})
		logger.Warn(ctx, "Order status unknown after placement", "symbol", symbol, "order_id", orderID, "error", err)
		c.notify(ctx, "BUY PENDING %s: order %s status unknown", symbol, orderID)
		return types.BuyOutcome{Symbol: symbol, Status: types.BuyPending, OrderID: orderID, Product: product, Quantity: qty, Price: last}
	}
	meta.OrderStatus = string(st.Status)

	switch st.Status {
	case types.OrderComplete:
		return c.finalizeFill(ctx, symbol, orderID, product, qty, last, st, meta)
	case types.OrderRejected, types.OrderCancelled:
		meta.Error = st.Message
		c.recordTrade(ctx, types.TradeRecord{
			Symbol: symbol, Quantity: qty, Side: types.SideBuyFailed, Price: last, OrderID: orderID, Meta: meta,
		})
		err := fmt.Errorf("order %s %s: %s: %w", orderID, st.Status, st.Message, types.ErrOrderRejected)
		c.notify(ctx, "BUY FAILED %s: order %s %s %s", symbol, orderID, st.Status, st.Message)
		return types.BuyOutcome{Symbol: symbol, Status: types.BuyFailed, OrderID: orderID, Product: product, Quantity: qty, Price: last, Err: err}
	default:
		c.recordTrade(ctx, types.TradeRecord{
			Symbol: symbol, Quantity: qty, Side: types.SideBuyPending, Price: last, OrderID: orderID, Meta: meta,
		})
		c.notify(ctx, "BUY PENDING %s: order %s is %s", symbol, orderID, st.Status)
		return types.BuyOutcome{Symbol: symbol, Status: types.BuyPending, OrderID: orderID, Product: product, Quantity: qty, Price: last}
	}
}

func (c *Coordinator) finalizeFill(ctx context.Context, symbol, orderID, product string, qty int, last decimal.Decimal, st types.OrderStatus, meta types.TradeMeta) types.BuyOutcome {
	fillQty := qty
	if st.FilledQty > 0 {
		fillQty = st.FilledQty
	}
	fillPrice := last
	if st.AvgPrice.IsPositive() {
		fillPrice = st.AvgPrice
	}

	c.recordTrade(ctx, types.TradeRecord{
		Symbol: symbol, Quantity: fillQty, Side: types.SideBuy, Price: fillPrice, OrderID: orderID, Meta: meta,
	})
	logger.Trade(ctx, symbol, string(types.SideBuy), fillQty, fillPrice.String(), orderID, "product", product)

	out := types.BuyOutcome{
		Symbol: symbol, Status: types.BuyFilled, OrderID: orderID,
		Product: product, Quantity: fillQty, Price: fillPrice,
	}
	pos := c.newPosition(symbol, fillQty, fillPrice, product)
	if err := c.store.UpsertPosition(ctx, pos); err != nil {
		logger.ErrorWithErr(ctx, "Filled buy could not be persisted", err, "symbol", symbol, "order_id", orderID)
		c.notify(ctx, "BUY %s filled (%d @ %s) but position not saved: %v", symbol, fillQty, fillPrice.StringFixed(2), err)
		out.Degraded = true
		out.Err = fmt.Errorf("%w: position not saved: %w", types.ErrPartialDegradation, err)
		return out
	}
	metrics.PositionTransitions.WithLabelValues(string(types.StatusBought)).Inc()

	if _, err := c.placeProtectiveSell(ctx, pos, orderID); err != nil {
		out.Degraded = true
		out.Err = err
		logger.Risk(ctx, symbol, "UNPROTECTED_POSITION", "order_id", orderID, "error", err.Error())
		c.notify(ctx, "BUY %s: %d @ %s\nWARNING: protective sell not placed: %v", symbol, fillQty, fillPrice.StringFixed(2), err)
		return out
	}
	c.notify(ctx, "BUY %s: %d @ %s (%s), target %s", symbol, fillQty, fillPrice.StringFixed(2), product, pos.TargetPrice.StringFixed(2))
	return out
}

// storeGate checks the durable reasons a symbol cannot be bought. A store
// error is reported as data unavailable.
func (c *Coordinator) storeGate(ctx context.Context, symbol string) (types.SkipReason, error) {
	open, err := c.store.HasOpenPosition(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Position lookup failed", err, "symbol", symbol)
		return types.SkipDataUnavailable, err
	}
	if open {
		return types.SkipOpenPosition, nil
	}
	active, err := c.store.HasActiveConditional(ctx, symbol)
	if err != nil {
		logger.ErrorWithErr(ctx, "Conditional order lookup failed", err, "symbol", symbol)
		return types.SkipDataUnavailable, err
	}
	if active {
		return types.SkipActiveConditional, nil
	}
	return types.SkipNone, nil
}

// prevCloseFor returns the session's cached previous close, filling it from
// the quote on first use.
func (c *Coordinator) prevCloseFor(symbol string, q types.Quote) decimal.Decimal {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	if e, ok := c.prevCloses[symbol]; ok && e.PreviousClose.IsPositive() {
		return e.PreviousClose
	}
	if !q.PreviousClose.IsPositive() {
		return decimal.Zero
	}
	c.prevCloses[symbol] = types.WatchlistEntry{Symbol: symbol, PreviousClose: q.PreviousClose, FetchedAt: c.now()}
	return q.PreviousClose
}

func (c *Coordinator) newPosition(symbol string, qty int, price decimal.Decimal, product string) types.Position {
	return types.Position{
		Symbol:       symbol,
		Quantity:     qty,
		AvgBuyPrice:  price,
		BuyTimestamp: c.now(),
		TargetPrice:  pctAbove(price, c.p.SellTargetPct),
		Status:       types.StatusBought,
		ProductType:  product,
	}
}

func (c *Coordinator) defaultProduct() string {
	if len(c.p.Products) > 0 {
		return c.p.Products[0]
	}
	return "CNC"
}

// recordTrade appends to the trade log. A write failure is logged, never
// propagated; the broker side effect already happened.
func (c *Coordinator) recordTrade(ctx context.Context, t types.TradeRecord) int64 {
	if t.Timestamp.IsZero() {
		t.Timestamp = c.now()
	}
	t.Meta.Version = types.TradeMetaVersion
	id, err := c.store.RecordTrade(ctx, t)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to record trade", err,
			"symbol", t.Symbol,
			"side", string(t.Side),
			"order_id", t.OrderID,
		)
		return 0
	}
	return id
}

func (c *Coordinator) notify(ctx context.Context, format string, args ...any) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(ctx, fmt.Sprintf(format, args...))
}

func isRejected(err error) bool {
	return errors.Is(err, types.ErrOrderRejected)
}
