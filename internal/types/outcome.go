package types

import "github.com/shopspring/decimal"

type BuyStatus string

const (
	BuyFilled    BuyStatus = "FILLED"
	BuyPending   BuyStatus = "PENDING"
	BuySimulated BuyStatus = "SIMULATED"
	BuySkipped   BuyStatus = "SKIPPED"
	BuyFailed    BuyStatus = "FAILED"
)

type SkipReason string

const (
	SkipNone                SkipReason = ""
	SkipOpenPosition        SkipReason = "open_position"
	SkipActiveConditional   SkipReason = "active_conditional"
	SkipAlreadyAttempted    SkipReason = "already_attempted"
	SkipDataUnavailable     SkipReason = "data_unavailable"
	SkipNoGap               SkipReason = "no_gap"
	SkipInsufficientCapital SkipReason = "insufficient_capital"
	SkipZeroQuantity        SkipReason = "zero_quantity"
	SkipShuttingDown        SkipReason = "shutting_down"
)

// BuyOutcome is the result of one ExecuteBuy call. Skips are normal; an Err on
// a skip is diagnostic only. FAILED always carries Err.
type BuyOutcome struct {
	Symbol   string
	Status   BuyStatus
	Skip     SkipReason
	OrderID  string
	Product  string
	Quantity int
	Price    decimal.Decimal
	// Degraded is set when the buy filled but no protective order exists.
	Degraded bool
	Err      error
}

func Skipped(symbol string, reason SkipReason) BuyOutcome {
	return BuyOutcome{Symbol: symbol, Status: BuySkipped, Skip: reason}
}

func (o BuyOutcome) Bought() bool {
	return o.Status == BuyFilled || o.Status == BuySimulated
}

// SellOutcome is the result of a manual sell.
type SellOutcome struct {
	Symbol    string
	OrderID   string
	Quantity  int
	Price     decimal.Decimal
	Simulated bool
	Closed    bool
}
