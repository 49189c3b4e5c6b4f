package zerodha

import (
	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// kiteClient is the subset of *kiteconnect.Client the adapter calls.
type kiteClient interface {
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetUserMargins() (kiteconnect.AllMargins, error)
	PlaceOrder(variety string, orderParams kiteconnect.OrderParams) (kiteconnect.OrderResponse, error)
	GetOrderHistory(orderID string) ([]kiteconnect.Order, error)
	PlaceGTT(o kiteconnect.GTTParams) (kiteconnect.GTTResponse, error)
	GetGTTs() (kiteconnect.GTTs, error)
	DeleteGTT(triggerID int) (kiteconnect.GTTResponse, error)
}

var _ kiteClient = (*kiteconnect.Client)(nil)
