package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/broker/paper"
	"etf-gap-trader/internal/storage/sqlstore"
	"etf-gap-trader/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(ctx context.Context, text string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(prefix string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.msgs {
		if strings.HasPrefix(m, prefix) {
			c++
		}
	}
	return c
}

type harness struct {
	coord  *Coordinator
	broker *paper.Broker
	store  *sqlstore.Store
	notes  *recordingNotifier
}

func testParams() Params {
	return Params{
		Watchlist:     []string{"NIFTYBEES", "GOLDBEES"},
		BuyGapPct:     d("2"),
		SellTargetPct: d("3"),
		LossAlertPct:  d("5"),
		Products:      []string{"MTF", "CNC"},
		MinTick:       d("0.05"),
	}
}

func newHarness(t *testing.T, balance string) *harness {
	t.Helper()
	st, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	brk := paper.New(paper.Params{Balance: d(balance)})
	notes := &recordingNotifier{}
	ledger := NewCapitalLedger(brk, st, d("70"), d("5"))
	c := NewCoordinator(testParams(), brk, st, ledger, notes)
	c.sleep = func(time.Duration) {}
	return &harness{coord: c, broker: brk, store: st, notes: notes}
}

func (h *harness) trades(t *testing.T, side types.TradeSide) []types.TradeRecord {
	t.Helper()
	all, err := h.store.ListRecentTrades(context.Background(), 1000)
	if err != nil {
		t.Fatalf("ListRecentTrades failed: %v", err)
	}
	var out []types.TradeRecord
	for _, tr := range all {
		if tr.Side == side {
			out = append(out, tr)
		}
	}
	return out
}

func (h *harness) position(t *testing.T, symbol string) types.Position {
	t.Helper()
	p, err := h.store.GetPosition(context.Background(), symbol)
	if err != nil {
		t.Fatalf("GetPosition(%s) failed: %v", symbol, err)
	}
	return p
}

func (h *harness) active(t *testing.T) []types.ConditionalOrder {
	t.Helper()
	out, err := h.store.ListActiveConditionalOrders(context.Background())
	if err != nil {
		t.Fatalf("ListActiveConditionalOrders failed: %v", err)
	}
	return out
}

// balanceBroker overrides Balance on the paper venue.
type balanceBroker struct {
	*paper.Broker
	bal decimal.Decimal
	err error
}

func (b *balanceBroker) Balance(ctx context.Context) (decimal.Decimal, error) {
	return b.bal, b.err
}

// gttFailBroker refuses every conditional order.
type gttFailBroker struct {
	*paper.Broker
}

func (b *gttFailBroker) PlaceConditionalOrder(ctx context.Context, req types.ConditionalOrderRequest) (string, error) {
	return "", errors.New("gtt service unavailable")
}
