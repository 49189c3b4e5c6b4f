package zerodha

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/types"
)

// ProductMTF is margin trading facility; gokiteconnect has no constant for it.
const ProductMTF = "MTF"

const maxTagLen = 20

type Params struct {
	APIKey      string
	AccessToken string
	Exchange    string
}

// Zerodha talks to Kite Connect over REST. The access token is issued out of
// band; expiry surfaces as a transport error.
type Zerodha struct {
	kc       kiteClient
	exchange string
}

var _ interfaces.Broker = (*Zerodha)(nil)

func NewZerodha(p Params) (*Zerodha, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, errors.New("missing API key/access token")
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	return newWithClient(kc, p.Exchange), nil
}

func newWithClient(kc kiteClient, exchange string) *Zerodha {
	if exchange == "" {
		exchange = kiteconnect.ExchangeNSE
	}
	return &Zerodha{kc: kc, exchange: exchange}
}

func (z *Zerodha) instrument(symbol string) string {
	return z.exchange + ":" + symbol
}

func (z *Zerodha) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	key := z.instrument(symbol)
	q, err := z.kc.GetQuote(key)
	if err != nil {
		return types.Quote{}, fmt.Errorf("quote %s: %w", symbol, classify(err))
	}
	data, ok := q[key]
	if !ok || data.LastPrice <= 0 {
		return types.Quote{}, fmt.Errorf("quote %s: %w", symbol, types.ErrDataUnavailable)
	}
	return types.Quote{
		Symbol:        symbol,
		LastPrice:     decimal.NewFromFloat(data.LastPrice),
		PreviousClose: decimal.NewFromFloat(data.OHLC.Close),
	}, nil
}

func (z *Zerodha) Balance(ctx context.Context) (decimal.Decimal, error) {
	m, err := z.kc.GetUserMargins()
	if err != nil {
		return decimal.Zero, fmt.Errorf("margins: %w", classify(err))
	}
	avail := m.Equity.Available
	if avail.LiveBalance > 0 {
		return decimal.NewFromFloat(avail.LiveBalance), nil
	}
	return decimal.NewFromFloat(avail.Cash), nil
}

func (z *Zerodha) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	params := kiteconnect.OrderParams{
		Exchange:        z.exchange,
		Tradingsymbol:   req.Symbol,
		Validity:        kiteconnect.ValidityDay,
		Product:         req.Product,
		OrderType:       kiteconnect.OrderTypeMarket,
		TransactionType: transactionType(req.Side),
		Quantity:        req.Qty,
		Tag:             truncate(req.Tag, maxTagLen),
	}
	if req.Kind == types.KindLimit {
		if req.Price == nil {
			return "", fmt.Errorf("limit order for %s without price: %w", req.Symbol, types.ErrOrderRejected)
		}
		params.OrderType = kiteconnect.OrderTypeLimit
		params.Price = req.Price.InexactFloat64()
	}

	resp, err := z.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return "", fmt.Errorf("place %s %s %s: %w", req.Side, req.Symbol, req.Product, classify(err))
	}
	return resp.OrderID, nil
}

func (z *Zerodha) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	history, err := z.kc.GetOrderHistory(orderID)
	if err != nil {
		return types.OrderStatus{}, fmt.Errorf("order history %s: %w", orderID, classify(err))
	}
	if len(history) == 0 {
		return types.OrderStatus{OrderID: orderID, Status: types.OrderUnknown}, nil
	}
	last := history[len(history)-1]
	return types.OrderStatus{
		OrderID:   orderID,
		Status:    mapOrderStatus(last.Status),
		FilledQty: int(last.FilledQuantity),
		AvgPrice:  decimal.NewFromFloat(last.AveragePrice),
		Message:   last.StatusMessage,
	}, nil
}

func (z *Zerodha) PlaceConditionalOrder(ctx context.Context, req types.ConditionalOrderRequest) (string, error) {
	// GTT legs are always limit orders on Kite; a market leg fires at the trigger.
	limit := req.TriggerPrice
	if req.LimitPrice != nil {
		limit = *req.LimitPrice
	}
	params := kiteconnect.GTTParams{
		Tradingsymbol:   req.Symbol,
		Exchange:        z.exchange,
		LastPrice:       req.LastPrice.InexactFloat64(),
		TransactionType: transactionType(req.Side),
		Product:         req.Product,
		Trigger: &kiteconnect.GTTSingleLegTrigger{
			TriggerParams: kiteconnect.TriggerParams{
				TriggerValue: req.TriggerPrice.InexactFloat64(),
				LimitPrice:   limit.InexactFloat64(),
				Quantity:     float64(req.Qty),
			},
		},
	}
	resp, err := z.kc.PlaceGTT(params)
	if err != nil {
		return "", fmt.Errorf("place gtt %s %s: %w", req.Side, req.Symbol, classify(err))
	}
	return strconv.Itoa(resp.TriggerID), nil
}

func (z *Zerodha) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	id, err := strconv.Atoi(remoteID)
	if err != nil {
		return fmt.Errorf("gtt id %q: %w", remoteID, types.ErrNotFound)
	}
	if _, err := z.kc.DeleteGTT(id); err != nil {
		return fmt.Errorf("delete gtt %s: %w", remoteID, classify(err))
	}
	return nil
}

func (z *Zerodha) ListConditionalOrders(ctx context.Context) ([]types.RemoteConditionalOrder, error) {
	gtts, err := z.kc.GetGTTs()
	if err != nil {
		return nil, fmt.Errorf("list gtts: %w", classify(err))
	}
	out := make([]types.RemoteConditionalOrder, 0, len(gtts))
	for _, g := range gtts {
		r := types.RemoteConditionalOrder{
			RemoteID: strconv.Itoa(g.ID),
			Symbol:   g.Condition.Tradingsymbol,
			Status:   mapGTTStatus(g.Status),
		}
		if len(g.Orders) > 0 {
			leg := g.Orders[0]
			r.Side = types.OrderSide(leg.TransactionType)
			r.Qty = int(leg.Quantity)
			r.Product = leg.Product
		}
		out = append(out, r)
	}
	return out, nil
}

func transactionType(side types.OrderSide) string {
	if side == types.OrderSell {
		return kiteconnect.TransactionTypeSell
	}
	return kiteconnect.TransactionTypeBuy
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
