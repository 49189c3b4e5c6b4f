package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"etf-gap-trader/internal/types"
)

const tradeCols = `id, symbol, quantity, side, price, ts, order_id, simulated, meta`

// RecordTrade appends to the audit log. Rows are never updated.
func (s *Store) RecordTrade(ctx context.Context, t types.TradeRecord) (int64, error) {
	if t.Meta.Version == 0 {
		t.Meta.Version = types.TradeMetaVersion
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO trades(symbol, quantity, side, price, ts, order_id, simulated, meta)
		VALUES(`+placeholders(8)+`) RETURNING id
	`), t.Symbol, t.Quantity, string(t.Side), t.Price, formatTS(t.Timestamp), t.OrderID, t.Simulated, string(meta)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("record trade %s %s: %w", t.Side, t.Symbol, err)
	}
	return id, nil
}

func (s *Store) ListRecentTrades(ctx context.Context, limit int) ([]types.TradeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryTrades(ctx, `SELECT `+tradeCols+` FROM trades ORDER BY id DESC LIMIT ?`, limit)
}

// ListTradesSince returns trades at or after since, oldest first.
func (s *Store) ListTradesSince(ctx context.Context, since time.Time) ([]types.TradeRecord, error) {
	return s.queryTrades(ctx, `SELECT `+tradeCols+` FROM trades WHERE ts >= ? ORDER BY id`, formatTS(since))
}

func (s *Store) queryTrades(ctx context.Context, q string, args ...any) ([]types.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.TradeRecord
	for rows.Next() {
		var (
			t        types.TradeRecord
			ts, meta string
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Quantity, &t.Side, &t.Price, &ts, &t.OrderID, &t.Simulated, &meta); err != nil {
			return nil, err
		}
		if t.Timestamp, err = parseTS(ts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(meta), &t.Meta); err != nil {
			return nil, fmt.Errorf("trade %d meta: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
