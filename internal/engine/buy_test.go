package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"etf-gap-trader/internal/types"
)

func TestExecuteBuyConcurrentCallersBuyOnce(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	ctx := context.Background()

	const callers = 8
	outs := make([]types.BuyOutcome, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
		}(i)
	}
	wg.Wait()

	filled := 0
	for _, o := range outs {
		switch o.Status {
		case types.BuyFilled:
			filled++
		case types.BuySkipped:
		default:
			t.Errorf("unexpected outcome %+v", o)
		}
	}
	if filled != 1 {
		t.Fatalf("filled = %d, want 1", filled)
	}
	if got := len(h.trades(t, types.SideBuy)); got != 1 {
		t.Errorf("BUY trade records = %d, want 1", got)
	}
	open, err := h.store.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("ListOpenPositions failed: %v", err)
	}
	if len(open) != 1 {
		t.Errorf("open positions = %d, want 1", len(open))
	}
	if got := len(h.active(t)); got != 1 {
		t.Errorf("active conditionals = %d, want 1", got)
	}
}

func TestExecuteBuyFillPlacesProtectiveSell(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	ctx := context.Background()

	out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
	if out.Status != types.BuyFilled || out.Degraded {
		t.Fatalf("outcome = %+v, want clean FILLED", out)
	}
	if out.Quantity != 36 || out.Product != "MTF" {
		t.Errorf("qty/product = %d/%s, want 36/MTF", out.Quantity, out.Product)
	}

	p := h.position(t, "NIFTYBEES")
	if p.Status != types.StatusBought || !p.AvgBuyPrice.Equal(d("97")) {
		t.Errorf("position = %+v", p)
	}
	if !p.TargetPrice.Equal(d("99.91")) {
		t.Errorf("target = %s, want 99.91", p.TargetPrice)
	}

	active := h.active(t)
	if len(active) != 1 {
		t.Fatalf("active conditionals = %d, want 1", len(active))
	}
	o := active[0]
	if o.Meta.Side != types.OrderSell || o.Quantity != 36 || !o.TriggerPrice.Equal(d("99.9")) {
		t.Errorf("protective order = %+v", o)
	}
	if got := len(h.trades(t, types.SideSellTriggerPlaced)); got != 1 {
		t.Errorf("SELL_TRIGGER_PLACED records = %d, want 1", got)
	}
}

func TestExecuteBuySkipsReleaseGuard(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("98.01"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Skip != types.SkipNoGap {
			t.Fatalf("attempt %d: skip = %q, want no_gap", i, out.Skip)
		}
	}
	if h.coord.guard.Contains("NIFTYBEES") {
		t.Error("symbol still guarded after soft skip")
	}

	h.broker.SetPrice("NIFTYBEES", d("100"), d("98"))
	if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Status != types.BuyFilled {
		t.Fatalf("buy at threshold = %+v, want FILLED", out)
	}
	if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Skip != types.SkipOpenPosition {
		t.Errorf("second buy skip = %q, want open_position", out.Skip)
	}
}

func TestExecuteBuyCapitalSkips(t *testing.T) {
	ctx := context.Background()

	t.Run("insufficient", func(t *testing.T) {
		h := newHarness(t, "100000")
		h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
		big := types.Position{
			Symbol: "BANKBEES", Quantity: 140, AvgBuyPrice: d("500"), TargetPrice: d("515"),
			Status: types.StatusBought, ProductType: "CNC", BuyTimestamp: time.Now(),
		}
		if err := h.store.UpsertPosition(ctx, big); err != nil {
			t.Fatalf("UpsertPosition failed: %v", err)
		}
		if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Skip != types.SkipInsufficientCapital {
			t.Errorf("skip = %q, want insufficient_capital", out.Skip)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		h := newHarness(t, "1000")
		h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
		if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Skip != types.SkipZeroQuantity {
			t.Errorf("skip = %q, want zero_quantity", out.Skip)
		}
	})
}

func TestExecuteBuyDryRun(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("GOLDBEES", d("50"), d("48"))
	ctx := context.Background()

	out := h.coord.ExecuteBuy(ctx, "GOLDBEES", true)
	if out.Status != types.BuySimulated {
		t.Fatalf("status = %s, want SIMULATED", out.Status)
	}
	trades := h.trades(t, types.SideBuy)
	if len(trades) != 1 || !trades[0].Simulated {
		t.Fatalf("trades = %+v, want one simulated BUY", trades)
	}
	if got := trades[0].Meta.Version; got != types.TradeMetaVersion {
		t.Errorf("meta version = %d", got)
	}
	if p := h.position(t, "GOLDBEES"); p.Status != types.StatusBought || p.Quantity != 72 {
		t.Errorf("position = %+v, want BOUGHT 72", p)
	}
	if got := len(h.active(t)); got != 0 {
		t.Errorf("dry run created %d conditionals", got)
	}
	if h.notes.count("DRY RUN BUY GOLDBEES") != 1 {
		t.Errorf("notifications = %v", h.notes.msgs)
	}
}

func TestExecuteBuyFallsBackToNextProduct(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	h.broker.FailNextOrder("MTF", fmt.Errorf("mtf not enabled: %w", types.ErrOrderRejected))

	out := h.coord.ExecuteBuy(context.Background(), "NIFTYBEES", false)
	if out.Status != types.BuyFilled || out.Product != "CNC" {
		t.Fatalf("outcome = %+v, want FILLED on CNC", out)
	}
	buys := h.trades(t, types.SideBuy)
	if len(buys) != 1 || len(buys[0].Meta.Attempts) != 2 {
		t.Fatalf("buy records = %+v", buys)
	}
	if buys[0].Meta.Attempts[0].Error == "" || buys[0].Meta.Attempts[1].OrderID == "" {
		t.Errorf("attempts = %+v", buys[0].Meta.Attempts)
	}
}

func TestExecuteBuyTransportErrorDoesNotRetry(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	h.broker.FailNextOrder("MTF", fmt.Errorf("timeout: %w", types.ErrTransport))

	out := h.coord.ExecuteBuy(context.Background(), "NIFTYBEES", false)
	if out.Status != types.BuyFailed || !errors.Is(out.Err, types.ErrTransport) {
		t.Fatalf("outcome = %+v, want FAILED with transport error", out)
	}
	failed := h.trades(t, types.SideBuyFailed)
	if len(failed) != 1 || len(failed[0].Meta.Attempts) != 1 {
		t.Errorf("BUY_FAILED records = %+v, want one with a single attempt", failed)
	}
}

func TestExecuteBuyFailureHoldsGuardUntilReset(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	rejected := fmt.Errorf("insufficient margin: %w", types.ErrOrderRejected)
	h.broker.FailNextOrder("MTF", rejected)
	h.broker.FailNextOrder("CNC", rejected)
	ctx := context.Background()

	out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
	if out.Status != types.BuyFailed || !errors.Is(out.Err, types.ErrOrderRejected) {
		t.Fatalf("outcome = %+v, want FAILED rejected", out)
	}
	if got := len(h.trades(t, types.SideBuyFailed)); got != 1 {
		t.Errorf("BUY_FAILED records = %d, want 1", got)
	}
	if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Skip != types.SkipAlreadyAttempted {
		t.Errorf("retry skip = %q, want already_attempted", out.Skip)
	}

	h.coord.ResetDailyGuard(ctx)
	if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Status != types.BuyFilled {
		t.Errorf("after reset = %+v, want FILLED", out)
	}
}

func TestExecuteBuyProtectiveFailureIsDegraded(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	brk := &gttFailBroker{Broker: h.broker}
	c := NewCoordinator(testParams(), brk, h.store, NewCapitalLedger(brk, h.store, d("70"), d("5")), h.notes)
	c.sleep = func(time.Duration) {}

	out := c.ExecuteBuy(context.Background(), "NIFTYBEES", false)
	if out.Status != types.BuyFilled || !out.Degraded || !errors.Is(out.Err, types.ErrPartialDegradation) {
		t.Fatalf("outcome = %+v, want degraded FILLED", out)
	}
	if got := len(h.trades(t, types.SideSellTriggerFailed)); got != 1 {
		t.Errorf("SELL_TRIGGER_FAILED records = %d, want 1", got)
	}
	if p := h.position(t, "NIFTYBEES"); p.Status != types.StatusBought {
		t.Errorf("position = %+v, want BOUGHT", p)
	}
	if h.notes.count("BUY NIFTYBEES") != 1 {
		t.Errorf("notifications = %v", h.notes.msgs)
	}
}

func TestProtectiveSellUntrackedIsDegraded(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	ctx := context.Background()

	if out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false); out.Status != types.BuyFilled {
		t.Fatalf("setup buy = %+v", out)
	}
	// The existing ACTIVE row makes the second save collide.
	_, err := h.coord.placeProtectiveSell(ctx, h.position(t, "NIFTYBEES"), "ORDER-2")
	if !errors.Is(err, types.ErrPartialDegradation) || !errors.Is(err, types.ErrDuplicateActive) {
		t.Fatalf("err = %v, want partial degradation on duplicate active", err)
	}
	if got := len(h.active(t)); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
}

func TestCloseRejectsNewBuys(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := h.coord.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if out := h.coord.ExecuteBuy(context.Background(), "NIFTYBEES", false); out.Skip != types.SkipShuttingDown {
		t.Errorf("skip = %q, want shutting_down", out.Skip)
	}
}

func TestCancelledContextStillFinalizesBuy(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	ctx, cancel := context.WithCancel(context.Background())
	h.coord.sleep = func(time.Duration) { cancel() }

	out := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
	if out.Status != types.BuyFilled {
		t.Fatalf("outcome = %+v, want FILLED despite cancellation", out)
	}
	if p := h.position(t, "NIFTYBEES"); p.Status != types.StatusBought {
		t.Errorf("position = %+v", p)
	}
}

func TestGuardResetKeepsInflightBuy(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name  string
		reset func(h *harness)
	}{
		{"operator reset", func(h *harness) { h.coord.ResetDailyGuard(ctx) }},
		{"session rollover", func(h *harness) {
			next := h.coord.now().Add(24 * time.Hour)
			h.coord.now = func() time.Time { return next }
			if err := h.coord.RunHousekeeping(ctx); err != nil {
				t.Errorf("RunHousekeeping failed: %v", err)
			}
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "100000")
			h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))

			var second types.BuyOutcome
			calls := 0
			h.coord.sleep = func(time.Duration) {
				calls++
				if calls > 1 {
					return
				}
				// The order is at the broker but no position row exists yet.
				tc.reset(h)
				second = h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
			}

			first := h.coord.ExecuteBuy(ctx, "NIFTYBEES", false)
			if first.Status != types.BuyFilled {
				t.Fatalf("first = %+v, want FILLED", first)
			}
			if second.Status != types.BuySkipped || second.Skip != types.SkipAlreadyAttempted {
				t.Errorf("second = %+v, want already_attempted skip", second)
			}
			if n := len(h.trades(t, types.SideBuy)); n != 1 {
				t.Errorf("BUY records = %d, want 1", n)
			}
			if !h.coord.guard.Contains("NIFTYBEES") {
				t.Error("filled symbol not guarded")
			}
		})
	}
}

func TestGuardHoldSemantics(t *testing.T) {
	g := newAttemptGuard()
	if !g.TryAcquire("NIFTYBEES") {
		t.Fatal("first acquire lost")
	}
	g.Add("GOLDBEES")

	if n := g.Reset(); n != 1 {
		t.Errorf("Reset cleared %d, want 1", n)
	}
	g.Release("NIFTYBEES")
	if !g.Contains("NIFTYBEES") {
		t.Fatal("held symbol dropped by Release")
	}

	g.Finish("NIFTYBEES", false)
	if !g.Contains("NIFTYBEES") {
		t.Fatal("Finish without release dropped the symbol")
	}
	g.Release("NIFTYBEES")
	if g.Contains("NIFTYBEES") {
		t.Error("Release after Finish kept the symbol")
	}

	g.TryAcquire("BANKBEES")
	g.Finish("BANKBEES", true)
	if g.Contains("BANKBEES") {
		t.Error("Finish with release kept the symbol")
	}
}
