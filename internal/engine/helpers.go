package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	ist     = time.FixedZone("IST", 19800) // IST is UTC+5:30 (19800 seconds)
)

func roundToTick(price, tick decimal.Decimal) decimal.Decimal {
	if !tick.IsPositive() {
		return price
	}
	return price.Div(tick).Round(0).Mul(tick)
}

// midnightIST returns the start of the IST trading day containing t.
func midnightIST(t time.Time) time.Time {
	znow := t.In(ist)
	return time.Date(znow.Year(), znow.Month(), znow.Day(), 0, 0, 0, 0, ist)
}

// pctAbove returns price × (1 + pct/100).
func pctAbove(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Add(pct.Div(hundred)))
}

// pctBelow returns price × (1 - pct/100).
func pctBelow(price, pct decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Sub(pct.Div(hundred)))
}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
