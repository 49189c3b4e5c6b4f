package types

import (
	"time"

	"github.com/shopspring/decimal"
)

type PositionStatus string

const (
	StatusWatching  PositionStatus = "WATCHING"
	StatusBought    PositionStatus = "BOUGHT"
	StatusAlerted   PositionStatus = "ALERTED"
	StatusTargetHit PositionStatus = "TARGET_HIT"
	StatusSold      PositionStatus = "SOLD"
)

// IsOpen reports whether the position still commits capital and blocks new buys.
func (s PositionStatus) IsOpen() bool {
	return s == StatusBought || s == StatusAlerted
}

// IsTerminal reports whether housekeeping may purge the row.
func (s PositionStatus) IsTerminal() bool {
	return s == StatusTargetHit || s == StatusSold
}

type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     int             `json:"quantity"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	BuyTimestamp time.Time       `json:"buy_timestamp"`
	TargetPrice  decimal.Decimal `json:"target_price"`
	Status       PositionStatus  `json:"status"`
	ProductType  string          `json:"product_type"`
}

// Cost is quantity × average buy price.
func (p Position) Cost() decimal.Decimal {
	return p.AvgBuyPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

type TradeSide string

const (
	SideBuy               TradeSide = "BUY"
	SideSell              TradeSide = "SELL"
	SideBuyPending        TradeSide = "BUY_PENDING"
	SideBuyFailed         TradeSide = "BUY_FAILED"
	SideSellMarket        TradeSide = "SELL_MARKET"
	SideSellLimit         TradeSide = "SELL_LIMIT"
	SideSellFailed        TradeSide = "SELL_FAILED"
	SideSellTriggerPlaced TradeSide = "SELL_TRIGGER_PLACED"
	SideSellTriggerFailed TradeSide = "SELL_TRIGGER_FAILED"
	SideBuyTriggerPlaced  TradeSide = "BUY_TRIGGER_PLACED"
	SideBuyTriggered      TradeSide = "BUY_TRIGGERED"
)

// TradeMetaVersion is bumped whenever TradeMeta changes shape.
const TradeMetaVersion = 1

// TradeMeta is the audit context persisted with every TradeRecord.
type TradeMeta struct {
	Version       int              `json:"v"`
	Note          string           `json:"note,omitempty"`
	GapPct        *decimal.Decimal `json:"gap_pct,omitempty"`
	PrevClose     *decimal.Decimal `json:"prev_close,omitempty"`
	RequestedQty  int              `json:"requested_qty,omitempty"`
	Product       string           `json:"product,omitempty"`
	OrderStatus   string           `json:"order_status,omitempty"`
	Attempts      []OrderAttempt   `json:"attempts,omitempty"`
	ParentOrderID string           `json:"parent_order_id,omitempty"`
	TriggerID     string           `json:"trigger_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// OrderAttempt records one placement try for a given product.
type OrderAttempt struct {
	Product string `json:"product"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type TradeRecord struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Quantity  int             `json:"quantity"`
	Side      TradeSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	OrderID   string          `json:"order_id"`
	Simulated bool            `json:"simulated"`
	Meta      TradeMeta       `json:"meta"`
}

type ConditionalStatus string

const (
	CondActive    ConditionalStatus = "ACTIVE"
	CondTriggered ConditionalStatus = "TRIGGERED"
	CondCancelled ConditionalStatus = "CANCELLED"
	CondCompleted ConditionalStatus = "COMPLETED"
)

// IsTerminal reports whether the remote order can no longer fire.
func (s ConditionalStatus) IsTerminal() bool {
	return s == CondTriggered || s == CondCancelled || s == CondCompleted
}

type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
)

type OrderSide string

const (
	OrderBuy  OrderSide = "BUY"
	OrderSell OrderSide = "SELL"
)

type ConditionalMeta struct {
	Side        OrderSide        `json:"side"`
	Product     string           `json:"product"`
	TargetPrice *decimal.Decimal `json:"target_price,omitempty"`
	StopLoss    *decimal.Decimal `json:"stop_loss,omitempty"`
	PrevClose   *decimal.Decimal `json:"prev_close,omitempty"`
	DryRun      bool             `json:"dry_run,omitempty"`
}

type ConditionalOrder struct {
	Symbol       string            `json:"symbol"`
	RemoteID     string            `json:"remote_id"`
	TriggerType  string            `json:"trigger_type"`
	TriggerPrice decimal.Decimal   `json:"trigger_price"`
	LastPrice    *decimal.Decimal  `json:"last_price,omitempty"`
	OrderKind    OrderKind         `json:"order_kind"`
	Quantity     int               `json:"quantity"`
	LimitPrice   *decimal.Decimal  `json:"limit_price,omitempty"`
	Condition    string            `json:"condition"`
	Status       ConditionalStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Meta         ConditionalMeta   `json:"meta"`
}

const TriggerSingle = "single"

// CapitalState is a point-in-time view; AllocatedCapital is derived from the
// position store when the snapshot is taken.
type CapitalState struct {
	TotalCapital     decimal.Decimal `json:"total_capital"`
	DeploymentPct    decimal.Decimal `json:"deployment_pct"`
	ReservePct       decimal.Decimal `json:"reserve_pct"`
	PerTradePct      decimal.Decimal `json:"per_trade_pct"`
	AllocatedCapital decimal.Decimal `json:"allocated_capital"`
	LastRefreshed    time.Time       `json:"last_refreshed"`
}

var hundred = decimal.NewFromInt(100)

// DeploymentCapital is totalCapital × deploymentPct/100.
func (c CapitalState) DeploymentCapital() decimal.Decimal {
	return c.TotalCapital.Mul(c.DeploymentPct).Div(hundred)
}

// ReserveCapital is totalCapital × reservePct/100.
func (c CapitalState) ReserveCapital() decimal.Decimal {
	return c.TotalCapital.Mul(c.ReservePct).Div(hundred)
}

// PerTradeBudget is deploymentCapital × perTradePct/100.
func (c CapitalState) PerTradeBudget() decimal.Decimal {
	return c.DeploymentCapital().Mul(c.PerTradePct).Div(hundred)
}

// WatchlistEntry caches a session's previous close; it is never authoritative.
type WatchlistEntry struct {
	Symbol        string          `json:"symbol"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

type Quote struct {
	Symbol        string
	LastPrice     decimal.Decimal
	PreviousClose decimal.Decimal
}

type OrderRequest struct {
	Symbol  string
	Qty     int
	Side    OrderSide
	Kind    OrderKind
	Price   *decimal.Decimal
	Product string
	Tag     string
}

type OrderState string

const (
	OrderComplete  OrderState = "COMPLETE"
	OrderOpen      OrderState = "OPEN"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
	OrderUnknown   OrderState = "UNKNOWN"
)

type OrderStatus struct {
	OrderID   string
	Status    OrderState
	FilledQty int
	AvgPrice  decimal.Decimal
	Message   string
}

type ConditionalOrderRequest struct {
	Symbol       string
	Side         OrderSide
	Kind         OrderKind
	TriggerPrice decimal.Decimal
	LimitPrice   *decimal.Decimal
	LastPrice    decimal.Decimal
	Qty          int
	Product      string
}

// RemoteConditionalOrder is the broker's view of a trigger order.
type RemoteConditionalOrder struct {
	RemoteID string
	Symbol   string
	Side     OrderSide
	Qty      int
	Status   ConditionalStatus
	Product  string
}

// EngineStatus is the operator-facing snapshot returned by Commands.Status.
type EngineStatus struct {
	DryRun         bool
	Watchlist      []string
	Capital        CapitalState
	Available      decimal.Decimal
	PerTradeBudget decimal.Decimal
	Guarded        []string
	Counts         map[PositionStatus]int
}
