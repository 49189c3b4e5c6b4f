package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

type fakeCommands struct {
	calls     []string
	sellKind  types.OrderKind
	sellPrice *decimal.Decimal
	sellErr   error
}

func (f *fakeCommands) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCommands) TriggerBuy(ctx context.Context, symbol string) types.BuyOutcome {
	f.record("buy %s", symbol)
	return types.Skipped(symbol, types.SkipNoGap)
}

func (f *fakeCommands) TriggerSell(ctx context.Context, symbol string, qty int, kind types.OrderKind, price *decimal.Decimal) (types.SellOutcome, error) {
	f.record("sell %s %d", symbol, qty)
	f.sellKind, f.sellPrice = kind, price
	if f.sellErr != nil {
		return types.SellOutcome{}, f.sellErr
	}
	return types.SellOutcome{Symbol: symbol, Quantity: qty, Price: decimal.NewFromInt(101), OrderID: "S1", Closed: true}, nil
}

func (f *fakeCommands) TriggerBuyOrder(ctx context.Context, symbol string) (types.ConditionalOrder, error) {
	f.record("trigger %s", symbol)
	return types.ConditionalOrder{RemoteID: "9", Symbol: symbol, Quantity: 3, TriggerPrice: decimal.NewFromInt(98)}, nil
}

func (f *fakeCommands) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	f.record("cancel %s", remoteID)
	return nil
}

func (f *fakeCommands) RefreshCapital(ctx context.Context) types.CapitalState {
	f.record("refresh")
	return types.CapitalState{TotalCapital: decimal.NewFromInt(100000), DeploymentPct: decimal.NewFromInt(70), ReservePct: decimal.NewFromInt(30), PerTradePct: decimal.NewFromInt(5)}
}

func (f *fakeCommands) ResetDailyGuard(ctx context.Context) { f.record("reset") }

func (f *fakeCommands) ListPositions(ctx context.Context) ([]types.Position, error) {
	f.record("positions")
	return nil, nil
}

func (f *fakeCommands) ListConditionalOrders(ctx context.Context) ([]types.ConditionalOrder, error) {
	f.record("gtts")
	return nil, nil
}

func (f *fakeCommands) ListRecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	f.record("trades %d", limit)
	return nil, nil
}

func (f *fakeCommands) Status(ctx context.Context) (types.EngineStatus, error) {
	f.record("status")
	return types.EngineStatus{DryRun: true, Counts: map[types.PositionStatus]int{types.StatusBought: 1}}, nil
}

func TestHandleDispatch(t *testing.T) {
	cases := []struct {
		text, call, reply string
	}{
		{"/buy niftybees", "buy NIFTYBEES", "SKIPPED NIFTYBEES: no_gap"},
		{"/buy@GapBot GOLDBEES", "buy GOLDBEES", "SKIPPED GOLDBEES"},
		{"/trigger bankbees", "trigger BANKBEES", "Buy trigger 9 placed"},
		{"/cancel 9", "cancel 9", "Cancelled 9"},
		{"/refresh", "refresh", "per trade 3500.00"},
		{"/reset", "reset", "guard cleared"},
		{"/positions", "positions", "No positions"},
		{"/gtts", "gtts", "No conditional orders"},
		{"/trades 3", "trades 3", "No trades"},
		{"/trades", "trades 10", "No trades"},
		{"/status", "status", "Mode DRY_RUN"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			fc := &fakeCommands{}
			b := &Bot{cmds: fc}
			reply := b.handle(context.Background(), tc.text)
			if len(fc.calls) != 1 || fc.calls[0] != tc.call {
				t.Errorf("calls = %v, want [%s]", fc.calls, tc.call)
			}
			if !strings.Contains(reply, tc.reply) {
				t.Errorf("reply = %q, want it to contain %q", reply, tc.reply)
			}
		})
	}
}

func TestHandleSellParsing(t *testing.T) {
	fc := &fakeCommands{}
	b := &Bot{cmds: fc}

	reply := b.handle(context.Background(), "/sell niftybees 4 LIMIT 101.50")
	if fc.sellKind != types.KindLimit || fc.sellPrice == nil || !fc.sellPrice.Equal(decimal.RequireFromString("101.5")) {
		t.Errorf("limit sell parsed as %s %v", fc.sellKind, fc.sellPrice)
	}
	if !strings.Contains(reply, "Position closed") {
		t.Errorf("reply = %q", reply)
	}

	b.handle(context.Background(), "/sell niftybees 4")
	if fc.sellKind != types.KindMarket || fc.sellPrice != nil {
		t.Errorf("market sell parsed as %s %v", fc.sellKind, fc.sellPrice)
	}

	for _, bad := range []string{"/sell X", "/sell X zero", "/sell X 2 STOP 10", "/sell X 2 LIMIT -1"} {
		n := len(fc.calls)
		if reply := b.handle(context.Background(), bad); !strings.HasPrefix(reply, "Usage") {
			t.Errorf("%q reply = %q, want usage", bad, reply)
		}
		if len(fc.calls) != n {
			t.Errorf("%q reached the command surface", bad)
		}
	}

	fc.sellErr = fmt.Errorf("qty 9 > open 4: %w", types.ErrOrderRejected)
	if reply := b.handle(context.Background(), "/sell X 9"); !strings.HasPrefix(reply, "Sell rejected") {
		t.Errorf("rejected reply = %q", reply)
	}
}

func TestHandleUnknown(t *testing.T) {
	b := &Bot{cmds: &fakeCommands{}}
	if reply := b.handle(context.Background(), "/moon"); !strings.Contains(reply, "Unknown command") {
		t.Errorf("reply = %q", reply)
	}
	if reply := b.handle(context.Background(), "   "); reply != "" {
		t.Errorf("blank reply = %q", reply)
	}
}

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m.Text)
	}
	return tgbotapi.Message{}, f.err
}

func TestNotifierSwallowsErrors(t *testing.T) {
	fs := &fakeSender{err: errors.New("telegram down")}
	n := &Notifier{api: fs, chatID: 42}
	n.Notify(context.Background(), "BUY NIFTYBEES")
	if len(fs.sent) != 1 || fs.sent[0] != "BUY NIFTYBEES" {
		t.Errorf("sent = %v", fs.sent)
	}
}
