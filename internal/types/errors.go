package types

import "errors"

var (
	// ErrDataUnavailable means a quote or previous close could not be resolved.
	ErrDataUnavailable = errors.New("market data unavailable")
	// ErrInsufficientCapital means the deployable budget cannot cover a trade.
	ErrInsufficientCapital = errors.New("insufficient capital")
	// ErrOrderRejected means the broker declined an order.
	ErrOrderRejected = errors.New("order rejected")
	// ErrPartialDegradation means a buy filled but its protective order failed.
	ErrPartialDegradation = errors.New("protective order not placed")
	// ErrTransport covers network and broker availability failures.
	ErrTransport = errors.New("broker transport error")
	ErrNotFound  = errors.New("not found")
	// ErrDuplicateActive is returned when a symbol already has an ACTIVE conditional order.
	ErrDuplicateActive = errors.New("active conditional order already exists")
)
