package sqlstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "nested", "trades.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func position(sym string, status types.PositionStatus) types.Position {
	return types.Position{
		Symbol:       sym,
		Quantity:     4,
		AvgBuyPrice:  d("97.55"),
		BuyTimestamp: time.Date(2026, 3, 2, 4, 0, 0, 0, time.UTC),
		TargetPrice:  d("100.4765"),
		Status:       status,
		ProductType:  "CNC",
	}
}

func TestPositionUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPosition(ctx, "NIFTYBEES"); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("GetPosition on empty store = %v, want ErrNotFound", err)
	}

	p := position("NIFTYBEES", types.StatusBought)
	if err := s.UpsertPosition(ctx, p); err != nil {
		t.Fatalf("UpsertPosition failed: %v", err)
	}
	p.Quantity = 7
	p.ProductType = "MTF"
	if err := s.UpsertPosition(ctx, p); err != nil {
		t.Fatalf("second UpsertPosition failed: %v", err)
	}

	got, err := s.GetPosition(ctx, "NIFTYBEES")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if got.Quantity != 7 || got.ProductType != "MTF" || !got.AvgBuyPrice.Equal(d("97.55")) {
		t.Errorf("unexpected position: %+v", got)
	}
	if !got.BuyTimestamp.Equal(p.BuyTimestamp) {
		t.Errorf("buy timestamp = %v, want %v", got.BuyTimestamp, p.BuyTimestamp)
	}

	all, _ := s.ListPositions(ctx)
	if len(all) != 1 {
		t.Errorf("expected one row per symbol, got %d", len(all))
	}
}

func TestOpenPositionsAndTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []types.Position{
		position("A", types.StatusBought),
		position("B", types.StatusAlerted),
		position("C", types.StatusTargetHit),
		position("D", types.StatusSold),
	} {
		if err := s.UpsertPosition(ctx, p); err != nil {
			t.Fatalf("UpsertPosition %s: %v", p.Symbol, err)
		}
	}

	open, err := s.ListOpenPositions(ctx)
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(open) != 2 || open[0].Symbol != "A" || open[1].Symbol != "B" {
		t.Errorf("open positions = %+v", open)
	}
	if ok, _ := s.HasOpenPosition(ctx, "C"); ok {
		t.Errorf("TARGET_HIT row reported as open")
	}

	// ALERTED never returns to BOUGHT
	changed, err := s.TransitionPosition(ctx, "B", types.StatusAlerted, types.StatusBought)
	if err != nil || changed {
		t.Errorf("ALERTED->ALERTED from BOUGHT only: changed=%v err=%v", changed, err)
	}
	changed, err = s.TransitionPosition(ctx, "A", types.StatusTargetHit, types.StatusBought, types.StatusAlerted)
	if err != nil || !changed {
		t.Fatalf("A -> TARGET_HIT: changed=%v err=%v", changed, err)
	}
	changed, _ = s.TransitionPosition(ctx, "A", types.StatusTargetHit, types.StatusBought, types.StatusAlerted)
	if changed {
		t.Errorf("second transition should be a no-op")
	}

	purged, err := s.PurgeTerminal(ctx)
	if err != nil {
		t.Fatalf("PurgeTerminal: %v", err)
	}
	if len(purged) != 3 {
		t.Errorf("purged = %v, want A C D", purged)
	}
	all, _ := s.ListPositions(ctx)
	if len(all) != 1 || all[0].Symbol != "B" {
		t.Errorf("remaining = %+v", all)
	}

	purged, _ = s.PurgeTerminal(ctx)
	if len(purged) != 0 {
		t.Errorf("second purge = %v", purged)
	}
}

func conditional(id, sym string) types.ConditionalOrder {
	limit := d("100.45")
	return types.ConditionalOrder{
		Symbol:       sym,
		RemoteID:     id,
		TriggerPrice: d("100.45"),
		OrderKind:    types.KindLimit,
		Quantity:     4,
		LimitPrice:   &limit,
		Condition:    ">=",
		Status:       types.CondActive,
		Meta:         types.ConditionalMeta{Side: types.OrderSell, Product: "CNC"},
	}
}

func TestConditionalSingleActivePerSymbol(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveConditionalOrder(ctx, conditional("1001", "NIFTYBEES")); err != nil {
		t.Fatalf("SaveConditionalOrder: %v", err)
	}
	err := s.SaveConditionalOrder(ctx, conditional("1002", "NIFTYBEES"))
	if !errors.Is(err, types.ErrDuplicateActive) {
		t.Fatalf("second ACTIVE save = %v, want ErrDuplicateActive", err)
	}
	// re-saving the same remote id is an update, not a duplicate
	if err := s.SaveConditionalOrder(ctx, conditional("1001", "NIFTYBEES")); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	if ok, _ := s.HasActiveConditional(ctx, "NIFTYBEES"); !ok {
		t.Errorf("expected active conditional")
	}
	if err := s.CancelConditionalOrder(ctx, "1001"); err != nil {
		t.Fatalf("CancelConditionalOrder: %v", err)
	}
	if ok, _ := s.HasActiveConditional(ctx, "NIFTYBEES"); ok {
		t.Errorf("cancelled order still active")
	}
	if err := s.SaveConditionalOrder(ctx, conditional("1002", "NIFTYBEES")); err != nil {
		t.Fatalf("save after cancel: %v", err)
	}

	got, err := s.GetConditionalOrder(ctx, "1001")
	if err != nil {
		t.Fatalf("GetConditionalOrder: %v", err)
	}
	if got.Status != types.CondCancelled || got.Meta.Product != "CNC" || got.LimitPrice == nil || !got.LimitPrice.Equal(d("100.45")) {
		t.Errorf("unexpected row: %+v", got)
	}
	if got.TriggerType != types.TriggerSingle {
		t.Errorf("trigger type = %q", got.TriggerType)
	}

	if err := s.CancelConditionalOrder(ctx, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("cancel missing = %v", err)
	}
}

func TestTransitionConditionalIsCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveConditionalOrder(ctx, conditional("77", "GOLDBEES")); err != nil {
		t.Fatalf("SaveConditionalOrder: %v", err)
	}

	last := d("101.2")
	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.TransitionConditional(ctx, "77", types.CondActive, types.CondTriggered, &last)
			if err != nil {
				t.Errorf("TransitionConditional: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	n := 0
	for ok := range wins {
		if ok {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d callers won the transition, want 1", n)
	}

	active, _ := s.ListActiveConditionalOrders(ctx)
	if len(active) != 0 {
		t.Errorf("active after trigger = %d", len(active))
	}
	got, _ := s.GetConditionalOrder(ctx, "77")
	if got.LastPrice == nil || !got.LastPrice.Equal(last) {
		t.Errorf("last price = %v", got.LastPrice)
	}
}

func TestTradesAppendAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Minute)

	gap := d("2.4")
	for i, side := range []types.TradeSide{types.SideBuy, types.SideSellTriggerPlaced, types.SideSell} {
		id, err := s.RecordTrade(ctx, types.TradeRecord{
			Symbol:    "NIFTYBEES",
			Quantity:  4,
			Side:      side,
			Price:     d("97.55"),
			Timestamp: start.Add(time.Duration(i) * time.Second),
			OrderID:   "OID",
			Simulated: i == 0,
			Meta:      types.TradeMeta{GapPct: &gap, Product: "CNC"},
		})
		if err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
		if id != int64(i+1) {
			t.Errorf("id = %d, want %d", id, i+1)
		}
	}

	recent, err := s.ListRecentTrades(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecentTrades: %v", err)
	}
	if len(recent) != 2 || recent[0].Side != types.SideSell {
		t.Errorf("recent = %+v", recent)
	}

	since, err := s.ListTradesSince(ctx, start.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("ListTradesSince: %v", err)
	}
	if len(since) != 2 || since[0].Side != types.SideSellTriggerPlaced {
		t.Errorf("since = %+v", since)
	}

	all, _ := s.ListTradesSince(ctx, start)
	if !all[0].Simulated || all[1].Simulated {
		t.Errorf("simulated flags = %v %v", all[0].Simulated, all[1].Simulated)
	}
	if all[0].Meta.Version != types.TradeMetaVersion || all[0].Meta.GapPct == nil || !all[0].Meta.GapPct.Equal(gap) {
		t.Errorf("meta = %+v", all[0].Meta)
	}
}

func TestRebind(t *testing.T) {
	s := &Store{driver: DriverPostgres}
	got := s.rebind(`SELECT * FROM t WHERE a = ? AND b IN (?, ?)`)
	if want := `SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)`; got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	s.driver = DriverSQLite
	if got := s.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}
