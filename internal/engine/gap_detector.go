package engine

import "github.com/shopspring/decimal"

// ShouldBuy reports whether last has gapped down from prev by at least gapPct
// percent. The threshold is inclusive: last <= prev × (1 - gapPct/100).
// Missing data (a non-positive prev or last) never buys.
func ShouldBuy(last, prev, gapPct decimal.Decimal) bool {
	if !prev.IsPositive() || !last.IsPositive() {
		return false
	}
	return last.LessThanOrEqual(pctBelow(prev, gapPct))
}

// GapPct returns how far last sits below prev, in percent. Positive means down.
func GapPct(last, prev decimal.Decimal) decimal.Decimal {
	if !prev.IsPositive() {
		return decimal.Zero
	}
	return prev.Sub(last).Div(prev).Mul(hundred).Round(4)
}
