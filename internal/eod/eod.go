package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
)

type eodSummarizer struct {
	log    interfaces.TradeLog
	dir    string
	hour   int
	minute int

	mu      sync.Mutex
	lastRun time.Time
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

func newSummarizer(log interfaces.TradeLog, dir string, hour, minute int) *eodSummarizer {
	if dir == "" {
		dir = filepath.Join("logs", "eod")
	}
	return &eodSummarizer{log: log, dir: dir, hour: hour, minute: minute}
}

func (s *eodSummarizer) SummarizeDay(ctx context.Context, day time.Time) (string, error) {
	start := dayStart(day)
	end := start.Add(24 * time.Hour)

	trades, err := s.log.ListTradesSince(ctx, start)
	if err != nil {
		return "", fmt.Errorf("load trades: %w", err)
	}
	s.mu.Lock()
	s.lastRun = start
	s.mu.Unlock()

	aggs := map[string]*aggRow{}
	for _, t := range trades {
		if !t.Timestamp.Before(end) {
			continue
		}
		if !isBuyFill(t.Side) && !isSellFill(t.Side) && !isFailure(t.Side) {
			continue
		}
		row := aggs[t.Symbol]
		if row == nil {
			row = &aggRow{Symbol: t.Symbol}
			aggs[t.Symbol] = row
		}
		value := t.Price.Mul(decimal.NewFromInt(int64(t.Quantity)))
		switch {
		case isBuyFill(t.Side):
			row.BuyQty += t.Quantity
			row.BuyValue = row.BuyValue.Add(value)
		case isSellFill(t.Side):
			row.SellQty += t.Quantity
			row.SellValue = row.SellValue.Add(value)
		default:
			row.Failed++
		}
		if t.Simulated {
			row.Simulated = true
		}
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(s.dir, start)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "buy_qty", "buy_avg", "sell_qty", "sell_avg", "realized_pnl", "gross_buy_value", "gross_sell_value", "failed", "simulated"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	totalBuy, totalSell, totalPnL := decimal.Zero, decimal.Zero, decimal.Zero
	totalFailed := 0
	for _, k := range keys {
		r := aggs[k]
		buyAvg, sellAvg := avg(r.BuyValue, r.BuyQty), avg(r.SellValue, r.SellQty)
		matched := min(r.BuyQty, r.SellQty)
		r.RealizedPnL = sellAvg.Sub(buyAvg).Mul(decimal.NewFromInt(int64(matched)))
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.BuyQty), buyAvg.StringFixed(4),
			strconv.Itoa(r.SellQty), sellAvg.StringFixed(4),
			r.RealizedPnL.StringFixed(2),
			r.BuyValue.StringFixed(2), r.SellValue.StringFixed(2),
			strconv.Itoa(r.Failed), strconv.FormatBool(r.Simulated),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalBuy = totalBuy.Add(r.BuyValue)
		totalSell = totalSell.Add(r.SellValue)
		totalPnL = totalPnL.Add(r.RealizedPnL)
		totalFailed += r.Failed
	}
	if err := w.Write([]string{"TOTAL", "", "", "", "", totalPnL.StringFixed(2), totalBuy.StringFixed(2), totalSell.StringFixed(2), strconv.Itoa(totalFailed), ""}); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) ShouldRunNow(now time.Time) bool {
	now = now.In(ist)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, ist)
	if now.Before(cutoff) {
		return false
	}
	today := dayStart(now)
	s.mu.Lock()
	ran := !s.lastRun.Before(today)
	s.mu.Unlock()
	if ran {
		return false
	}
	_, err := os.Stat(eodCSVPath(s.dir, now))
	return errors.Is(err, os.ErrNotExist)
}

func avg(value decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return value.Div(decimal.NewFromInt(int64(qty)))
}
