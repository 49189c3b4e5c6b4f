package redisfeed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"etf-gap-trader/internal/interfaces"
	"etf-gap-trader/internal/logger"
	"etf-gap-trader/internal/types"
)

const publishTimeout = 2 * time.Second

// Feed mirrors every recorded trade onto a Redis stream and a pub/sub channel.
// The wrapped store stays authoritative; feed errors are logged and dropped.
type Feed struct {
	interfaces.Store
	rdb     *redis.Client
	stream  string
	channel string
}

var _ interfaces.Store = (*Feed)(nil)

func New(store interfaces.Store, rdb *redis.Client, stream, channel string) *Feed {
	if strings.TrimSpace(stream) == "" {
		stream = "gaptrader:trades"
	}
	if strings.TrimSpace(channel) == "" {
		channel = stream + ":pub"
	}
	return &Feed{Store: store, rdb: rdb, stream: stream, channel: channel}
}

type event struct {
	ID        int64           `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      types.TradeSide `json:"side"`
	Quantity  int             `json:"quantity"`
	Price     string          `json:"price"`
	OrderID   string          `json:"order_id"`
	Simulated bool            `json:"simulated"`
	TsMs      int64           `json:"ts_ms"`
	Meta      types.TradeMeta `json:"meta"`
}

func (f *Feed) RecordTrade(ctx context.Context, t types.TradeRecord) (int64, error) {
	id, err := f.Store.RecordTrade(ctx, t)
	if err != nil {
		return 0, err
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	t.ID = id
	f.publish(context.WithoutCancel(ctx), t)
	return id, nil
}

func (f *Feed) publish(ctx context.Context, t types.TradeRecord) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	ev := event{
		ID:        t.ID,
		Symbol:    t.Symbol,
		Side:      t.Side,
		Quantity:  t.Quantity,
		Price:     t.Price.String(),
		OrderID:   t.OrderID,
		Simulated: t.Simulated,
		TsMs:      t.Timestamp.UnixMilli(),
		Meta:      t.Meta,
	}
	b, _ := json.Marshal(ev)

	// 1) Stream: durable history for late consumers
	if err := f.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: f.stream,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]any{
			"ts_ms":   ev.TsMs,
			"symbol":  ev.Symbol,
			"side":    string(ev.Side),
			"payload": string(b),
		},
	}).Err(); err != nil {
		logger.Warn(ctx, "Activity feed XADD failed", "stream", f.stream, "error", err)
		return
	}

	// 2) PubSub: live dashboards
	if err := f.rdb.Publish(ctx, f.channel, b).Err(); err != nil {
		logger.Warn(ctx, "Activity feed PUBLISH failed", "channel", f.channel, "error", err)
	}
}
