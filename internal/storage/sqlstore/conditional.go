package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"etf-gap-trader/internal/types"
)

const conditionalCols = `remote_id, symbol, trigger_type, trigger_price, last_price, order_kind, quantity,
	limit_price, trigger_condition, status, created_at, updated_at, meta`

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func scanConditional(r rowScanner) (types.ConditionalOrder, error) {
	var (
		o                types.ConditionalOrder
		last, limit      decimal.NullDecimal
		created, updated string
		meta             string
	)
	if err := r.Scan(&o.RemoteID, &o.Symbol, &o.TriggerType, &o.TriggerPrice, &last, &o.OrderKind, &o.Quantity,
		&limit, &o.Condition, &o.Status, &created, &updated, &meta); err != nil {
		return types.ConditionalOrder{}, err
	}
	o.LastPrice = decimalPtr(last)
	o.LimitPrice = decimalPtr(limit)

	var err error
	if o.CreatedAt, err = parseTS(created); err != nil {
		return types.ConditionalOrder{}, err
	}
	if o.UpdatedAt, err = parseTS(updated); err != nil {
		return types.ConditionalOrder{}, err
	}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &o.Meta); err != nil {
			return types.ConditionalOrder{}, fmt.Errorf("conditional %s meta: %w", o.RemoteID, err)
		}
	}
	return o, nil
}

// SaveConditionalOrder inserts or replaces the row keyed by remote id.
func (s *Store) SaveConditionalOrder(ctx context.Context, o types.ConditionalOrder) error {
	meta, err := json.Marshal(o.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.TriggerType == "" {
		o.TriggerType = types.TriggerSingle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if o.Status == types.CondActive {
		var n int
		if err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM conditional_orders WHERE symbol = ? AND status = ? AND remote_id <> ?`),
			o.Symbol, string(types.CondActive), o.RemoteID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("conditional order for %s: %w", o.Symbol, types.ErrDuplicateActive)
		}
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO conditional_orders(`+conditionalCols+`)
		VALUES(`+placeholders(13)+`)
		ON CONFLICT(remote_id) DO UPDATE SET
		symbol=excluded.symbol, trigger_type=excluded.trigger_type, trigger_price=excluded.trigger_price,
		last_price=excluded.last_price, order_kind=excluded.order_kind, quantity=excluded.quantity,
		limit_price=excluded.limit_price, trigger_condition=excluded.trigger_condition,
		status=excluded.status, updated_at=excluded.updated_at, meta=excluded.meta
	`), o.RemoteID, o.Symbol, o.TriggerType, o.TriggerPrice, nullDecimal(o.LastPrice), string(o.OrderKind), o.Quantity,
		nullDecimal(o.LimitPrice), o.Condition, string(o.Status), formatTS(o.CreatedAt), formatTS(now), string(meta))
	if err != nil {
		return fmt.Errorf("save conditional %s: %w", o.RemoteID, err)
	}
	return tx.Commit()
}

func (s *Store) UpdateConditionalStatus(ctx context.Context, remoteID string, status types.ConditionalStatus, lastPrice *decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE conditional_orders SET status = ?, last_price = COALESCE(?, last_price), updated_at = ? WHERE remote_id = ?`),
		string(status), nullDecimal(lastPrice), formatTS(time.Now()), remoteID)
	if err != nil {
		return fmt.Errorf("update conditional %s: %w", remoteID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conditional %s: %w", remoteID, types.ErrNotFound)
	}
	return nil
}

func (s *Store) TransitionConditional(ctx context.Context, remoteID string, from, to types.ConditionalStatus, lastPrice *decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE conditional_orders SET status = ?, last_price = COALESCE(?, last_price), updated_at = ? WHERE remote_id = ? AND status = ?`),
		string(to), nullDecimal(lastPrice), formatTS(time.Now()), remoteID, string(from))
	if err != nil {
		return false, fmt.Errorf("transition conditional %s: %w", remoteID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetConditionalOrder(ctx context.Context, remoteID string) (types.ConditionalOrder, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+conditionalCols+` FROM conditional_orders WHERE remote_id = ?`), remoteID)
	o, err := scanConditional(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ConditionalOrder{}, fmt.Errorf("conditional %s: %w", remoteID, types.ErrNotFound)
	}
	return o, err
}

func (s *Store) ListActiveConditionalOrders(ctx context.Context) ([]types.ConditionalOrder, error) {
	return s.queryConditional(ctx, `SELECT `+conditionalCols+` FROM conditional_orders WHERE status = ? ORDER BY created_at`, string(types.CondActive))
}

func (s *Store) ListConditionalOrders(ctx context.Context, limit int) ([]types.ConditionalOrder, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryConditional(ctx, `SELECT `+conditionalCols+` FROM conditional_orders ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *Store) HasActiveConditional(ctx context.Context, symbol string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM conditional_orders WHERE symbol = ? AND status = ?`),
		symbol, string(types.CondActive)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has active conditional %s: %w", symbol, err)
	}
	return n > 0, nil
}

// CancelConditionalOrder marks the row CANCELLED locally only.
func (s *Store) CancelConditionalOrder(ctx context.Context, remoteID string) error {
	return s.UpdateConditionalStatus(ctx, remoteID, types.CondCancelled, nil)
}

func (s *Store) queryConditional(ctx context.Context, q string, args ...any) ([]types.ConditionalOrder, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ConditionalOrder
	for rows.Next() {
		o, err := scanConditional(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
