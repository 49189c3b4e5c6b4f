package engine

import "github.com/shopspring/decimal"

// QuantityFor returns the whole number of units of symbol that budget buys at
// price. A non-positive price yields zero.
func QuantityFor(symbol string, price, budget decimal.Decimal) int {
	if !price.IsPositive() || !budget.IsPositive() {
		return 0
	}
	return int(budget.Div(price).Floor().IntPart())
}
