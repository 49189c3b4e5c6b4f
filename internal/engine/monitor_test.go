package engine

import (
	"context"
	"testing"
	"time"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/types"
)

type fakeEOD struct {
	due   bool
	calls int
}

func (f *fakeEOD) ShouldRunNow(now time.Time) bool { return f.due }

func (f *fakeEOD) SummarizeDay(ctx context.Context, day time.Time) (string, error) {
	f.calls++
	f.due = false
	return "logs/eod/" + day.Format("2006-01-02") + ".csv", nil
}

func newTestMonitor(h *harness, eod interfaces.EodSummarizer) *Monitor {
	cfg := MonitorConfig{
		Watchlist:    []string{"NIFTYBEES", "GOLDBEES"},
		DryRun:       true,
		Poll:         time.Millisecond,
		Reconcile:    time.Millisecond,
		Housekeeping: time.Millisecond,
	}
	return NewMonitor(cfg, h.coord, h.store, h.broker, eod, h.notes)
}

func TestMonitorTick(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	h.broker.SetPrice("GOLDBEES", d("50"), d("49.5"))
	m := newTestMonitor(h, nil)
	ctx := context.Background()

	m.Tick(ctx)
	if n := len(h.trades(t, types.SideBuy)); n != 1 {
		t.Fatalf("BUY records after first tick = %d, want 1", n)
	}

	h.broker.SetPrice("NIFTYBEES", d("100"), d("100"))
	m.Tick(ctx)
	if p := h.position(t, "NIFTYBEES"); p.Status != types.StatusTargetHit {
		t.Fatalf("status = %s, want TARGET_HIT", p.Status)
	}

	// Closed rows are not re-bought before housekeeping purges them.
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	m.Tick(ctx)
	if n := len(h.trades(t, types.SideBuy)); n != 1 {
		t.Errorf("BUY records before purge = %d, want 1", n)
	}
	if err := h.coord.RunHousekeeping(ctx); err != nil {
		t.Fatalf("RunHousekeeping failed: %v", err)
	}
	m.Tick(ctx)
	if n := len(h.trades(t, types.SideBuy)); n != 2 {
		t.Errorf("BUY records after purge = %d, want 2", n)
	}
}

func TestMonitorRunsEODOnce(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("100"))
	h.broker.SetPrice("GOLDBEES", d("50"), d("50"))
	eod := &fakeEOD{due: true}
	m := newTestMonitor(h, eod)
	ctx := context.Background()

	m.maybeEOD(ctx)
	m.maybeEOD(ctx)
	if eod.calls != 1 {
		t.Errorf("summaries = %d, want 1", eod.calls)
	}
	if h.notes.count("EOD summary written") != 1 {
		t.Errorf("notifications = %v", h.notes.msgs)
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("100"))
	h.broker.SetPrice("GOLDBEES", d("50"), d("50"))
	m := newTestMonitor(h, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestCommandsRouteThroughCoordinator(t *testing.T) {
	h := newHarness(t, "100000")
	h.broker.SetPrice("NIFTYBEES", d("100"), d("97"))
	cmds := NewCommands(h.coord, h.store, true)
	ctx := context.Background()

	if out := cmds.TriggerBuy(ctx, "NIFTYBEES"); out.Status != types.BuySimulated {
		t.Fatalf("TriggerBuy = %+v, want SIMULATED", out)
	}
	ps, err := cmds.ListPositions(ctx)
	if err != nil || len(ps) != 1 {
		t.Fatalf("ListPositions = %v, %v", ps, err)
	}
	trades, err := cmds.ListRecentTrades(ctx, 5)
	if err != nil || len(trades) != 1 {
		t.Fatalf("ListRecentTrades = %v, %v", trades, err)
	}
	st, err := cmds.Status(ctx)
	if err != nil || st.Counts[types.StatusBought] != 1 {
		t.Fatalf("Status = %+v, %v", st, err)
	}
	if out, err := cmds.TriggerSell(ctx, "NIFTYBEES", 36, types.KindMarket, nil); err != nil || !out.Simulated {
		t.Errorf("TriggerSell = %+v, %v", out, err)
	}
}
