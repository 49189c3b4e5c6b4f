package eod

import (
	"path/filepath"
	"time"

	"etf-gap-trader/internal/types"
)

var ist = time.FixedZone("IST", 19800)

func dayStart(t time.Time) time.Time {
	z := t.In(ist)
	return time.Date(z.Year(), z.Month(), z.Day(), 0, 0, 0, 0, ist)
}

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, t.In(ist).Format("2006-01-02")+".csv")
}

func isBuyFill(s types.TradeSide) bool {
	return s == types.SideBuy || s == types.SideBuyTriggered
}

func isSellFill(s types.TradeSide) bool {
	return s == types.SideSell || s == types.SideSellMarket || s == types.SideSellLimit
}

func isFailure(s types.TradeSide) bool {
	return s == types.SideBuyFailed || s == types.SideSellFailed || s == types.SideSellTriggerFailed
}
