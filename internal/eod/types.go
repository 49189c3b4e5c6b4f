package eod

import "github.com/shopspring/decimal"

// aggRow represents aggregated trading statistics for a symbol.
// Used to calculate EOD summary metrics across all trades for a symbol.
type aggRow struct {
	Symbol      string          // Trading symbol
	BuyQty      int             // Total quantity bought
	BuyValue    decimal.Decimal // Total value of buy fills (qty * price)
	SellQty     int             // Total quantity sold
	SellValue   decimal.Decimal // Total value of sell fills (qty * price)
	RealizedPnL decimal.Decimal // Realized profit/loss on the matched quantity
	Failed      int             // Failed buy, sell or trigger placements
	Simulated   bool            // Any dry-run trade contributed
}
