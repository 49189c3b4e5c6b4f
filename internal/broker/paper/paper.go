package paper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/types"
)

// Params configures the simulated venue.
type Params struct {
	Balance decimal.Decimal
	// Drift is the maximum per-quote move as a fraction of the previous close.
	// Zero keeps prices fixed until SetPrice is called.
	Drift float64
	Seed  int64
}

type gtt struct {
	req    types.ConditionalOrderRequest
	status types.ConditionalStatus
}

// Broker fills every order immediately at the last price. It never matches
// against a book.
type Broker struct {
	mu        sync.Mutex
	p         Params
	rng       *rand.Rand
	prevClose map[string]decimal.Decimal
	last      map[string]decimal.Decimal
	orders    map[string]types.OrderStatus
	gtts      map[string]*gtt
	failNext  map[string]error
}

var _ interfaces.Broker = (*Broker)(nil)

func New(p Params) *Broker {
	return &Broker{
		p:         p,
		rng:       rand.New(rand.NewSource(p.Seed)),
		prevClose: make(map[string]decimal.Decimal),
		last:      make(map[string]decimal.Decimal),
		orders:    make(map[string]types.OrderStatus),
		gtts:      make(map[string]*gtt),
		failNext:  make(map[string]error),
	}
}

// SetPrice fixes the previous close and last price for a symbol.
func (b *Broker) SetPrice(symbol string, prevClose, last decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prevClose[symbol] = prevClose
	b.last[symbol] = last
}

func (b *Broker) SetBalance(bal decimal.Decimal) {
	b.mu.Lock()
	b.p.Balance = bal
	b.mu.Unlock()
}

// FailNextOrder makes the next PlaceOrder for product return err.
func (b *Broker) FailNextOrder(product string, err error) {
	b.mu.Lock()
	b.failNext[product] = err
	b.mu.Unlock()
}

func (b *Broker) Quote(ctx context.Context, symbol string) (types.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, ok := b.prevClose[symbol]
	if !ok {
		prev = decimal.NewFromFloat(100 + b.rng.Float64()*200).Round(2)
		b.prevClose[symbol] = prev
		b.last[symbol] = prev
	}
	last := b.last[symbol]
	if b.p.Drift > 0 {
		move := (b.rng.Float64()*2 - 1) * b.p.Drift
		last = last.Add(prev.Mul(decimal.NewFromFloat(move))).Round(2)
		if last.LessThanOrEqual(decimal.Zero) {
			last = prev
		}
		b.last[symbol] = last
	}
	b.fireTriggers(symbol, last)
	return types.Quote{Symbol: symbol, LastPrice: last, PreviousClose: prev}, nil
}

func (b *Broker) Balance(ctx context.Context) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.p.Balance, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err, ok := b.failNext[req.Product]; ok {
		delete(b.failNext, req.Product)
		return "", err
	}
	if req.Qty <= 0 {
		return "", fmt.Errorf("quantity %d: %w", req.Qty, types.ErrOrderRejected)
	}
	price, ok := b.last[req.Symbol]
	if req.Kind == types.KindLimit && req.Price != nil {
		price, ok = *req.Price, true
	}
	if !ok {
		return "", fmt.Errorf("no price for %s: %w", req.Symbol, types.ErrOrderRejected)
	}

	id := "PAPER-" + uuid.NewString()
	b.orders[id] = types.OrderStatus{
		OrderID:   id,
		Status:    types.OrderComplete,
		FilledQty: req.Qty,
		AvgPrice:  price,
	}
	return id, nil
}

func (b *Broker) OrderStatus(ctx context.Context, orderID string) (types.OrderStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.orders[orderID]
	if !ok {
		return types.OrderStatus{}, fmt.Errorf("order %s: %w", orderID, types.ErrNotFound)
	}
	return st, nil
}

func (b *Broker) PlaceConditionalOrder(ctx context.Context, req types.ConditionalOrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.Qty <= 0 {
		return "", fmt.Errorf("quantity %d: %w", req.Qty, types.ErrOrderRejected)
	}
	id := "PAPER-GTT-" + strings.ToUpper(uuid.NewString()[:8])
	b.gtts[id] = &gtt{req: req, status: types.CondActive}
	return id, nil
}

func (b *Broker) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gtts[remoteID]
	if !ok {
		return fmt.Errorf("gtt %s: %w", remoteID, types.ErrNotFound)
	}
	g.status = types.CondCancelled
	return nil
}

func (b *Broker) ListConditionalOrders(ctx context.Context) ([]types.RemoteConditionalOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.RemoteConditionalOrder, 0, len(b.gtts))
	for id, g := range b.gtts {
		out = append(out, types.RemoteConditionalOrder{
			RemoteID: id,
			Symbol:   g.req.Symbol,
			Side:     g.req.Side,
			Qty:      g.req.Qty,
			Status:   g.status,
			Product:  g.req.Product,
		})
	}
	return out, nil
}

// SetConditionalStatus forces a remote status, as the exchange would.
func (b *Broker) SetConditionalStatus(remoteID string, status types.ConditionalStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.gtts[remoteID]; ok {
		g.status = status
	}
}

// fireTriggers marks ACTIVE trigger orders as TRIGGERED once price crosses.
// Caller holds b.mu.
func (b *Broker) fireTriggers(symbol string, last decimal.Decimal) {
	for _, g := range b.gtts {
		if g.status != types.CondActive || g.req.Symbol != symbol {
			continue
		}
		crossed := false
		if g.req.Side == types.OrderBuy {
			crossed = last.LessThanOrEqual(g.req.TriggerPrice)
		} else {
			crossed = last.GreaterThanOrEqual(g.req.TriggerPrice)
		}
		if crossed {
			g.status = types.CondTriggered
		}
	}
}
