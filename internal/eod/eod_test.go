package eod

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/storage/sqlstore"
	"etf-gap-trader/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSummarizeDay(t *testing.T) {
	st, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	day := time.Date(2026, 3, 2, 10, 0, 0, 0, ist)
	records := []types.TradeRecord{
		{Symbol: "NIFTYBEES", Quantity: 10, Side: types.SideBuy, Price: d("97"), Timestamp: day},
		{Symbol: "NIFTYBEES", Quantity: 10, Side: types.SideSellTriggerPlaced, Price: d("99.9"), Timestamp: day},
		{Symbol: "NIFTYBEES", Quantity: 10, Side: types.SideSell, Price: d("99.9"), Timestamp: day.Add(3 * time.Hour)},
		{Symbol: "GOLDBEES", Quantity: 5, Side: types.SideBuyFailed, Price: d("50"), Timestamp: day},
		{Symbol: "BANKBEES", Quantity: 2, Side: types.SideBuy, Price: d("500"), Timestamp: day.Add(24 * time.Hour)},
	}
	for _, r := range records {
		if _, err := st.RecordTrade(ctx, r); err != nil {
			t.Fatalf("RecordTrade failed: %v", err)
		}
	}

	dir := filepath.Join(t.TempDir(), "eod")
	s := NewSummarizer(st, dir, 15, 35)
	path, err := s.SummarizeDay(ctx, day)
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path != filepath.Join(dir, "2026-03-02.csv") {
		t.Errorf("path = %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// header, GOLDBEES, NIFTYBEES, TOTAL
	if len(rows) != 4 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][0] != "GOLDBEES" || rows[1][8] != "1" {
		t.Errorf("GOLDBEES row = %v", rows[1])
	}
	nifty := rows[2]
	if nifty[0] != "NIFTYBEES" || nifty[1] != "10" || nifty[3] != "10" || nifty[5] != "29.00" {
		t.Errorf("NIFTYBEES row = %v", nifty)
	}
	if rows[3][0] != "TOTAL" || rows[3][5] != "29.00" {
		t.Errorf("TOTAL row = %v", rows[3])
	}
}

func TestSummarizeDayWithoutTrades(t *testing.T) {
	st, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	s := NewSummarizer(st, t.TempDir(), 15, 35)
	path, err := s.SummarizeDay(context.Background(), time.Now())
	if err != nil || path != "" {
		t.Errorf("SummarizeDay = %q, %v, want empty", path, err)
	}
}

func TestShouldRunNow(t *testing.T) {
	st, err := sqlstore.Open(sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	s := NewSummarizer(st, t.TempDir(), 15, 35)
	before := time.Date(2026, 3, 2, 15, 34, 0, 0, ist)
	after := time.Date(2026, 3, 2, 15, 36, 0, 0, ist)

	if s.ShouldRunNow(before) {
		t.Error("due before cutoff")
	}
	if !s.ShouldRunNow(after) {
		t.Fatal("not due after cutoff")
	}
	if _, err := s.SummarizeDay(context.Background(), after); err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if s.ShouldRunNow(after.Add(time.Hour)) {
		t.Error("due again on the same day")
	}
	if !s.ShouldRunNow(after.Add(24 * time.Hour)) {
		t.Error("not due on the next day")
	}
}
