package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"etf-gap-trader/internal/types"
)

const positionCols = `symbol, quantity, avg_buy_price, buy_timestamp, target_price, status, product_type`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (types.Position, error) {
	var (
		p  types.Position
		ts string
	)
	if err := r.Scan(&p.Symbol, &p.Quantity, &p.AvgBuyPrice, &ts, &p.TargetPrice, &p.Status, &p.ProductType); err != nil {
		return types.Position{}, err
	}
	t, err := parseTS(ts)
	if err != nil {
		return types.Position{}, fmt.Errorf("position %s buy_timestamp: %w", p.Symbol, err)
	}
	p.BuyTimestamp = t
	return p, nil
}

func (s *Store) GetPosition(ctx context.Context, symbol string) (types.Position, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+positionCols+` FROM positions WHERE symbol = ?`), symbol)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Position{}, fmt.Errorf("position %s: %w", symbol, types.ErrNotFound)
	}
	return p, err
}

// UpsertPosition overwrites every field of an existing row for the symbol.
func (s *Store) UpsertPosition(ctx context.Context, p types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO positions(`+positionCols+`, updated_at)
		VALUES(`+placeholders(8)+`)
		ON CONFLICT(symbol) DO UPDATE SET
		quantity=excluded.quantity, avg_buy_price=excluded.avg_buy_price,
		buy_timestamp=excluded.buy_timestamp, target_price=excluded.target_price,
		status=excluded.status, product_type=excluded.product_type, updated_at=excluded.updated_at
	`), p.Symbol, p.Quantity, p.AvgBuyPrice, formatTS(p.BuyTimestamp), p.TargetPrice,
		string(p.Status), p.ProductType, formatTS(time.Now()))
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

func (s *Store) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM positions WHERE symbol = ? AND status IN (?, ?)`),
		symbol, string(types.StatusBought), string(types.StatusAlerted)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has open position %s: %w", symbol, err)
	}
	return n > 0, nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]types.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionCols+` FROM positions WHERE status IN (?, ?) ORDER BY symbol`,
		string(types.StatusBought), string(types.StatusAlerted))
}

func (s *Store) ListPositions(ctx context.Context) ([]types.Position, error) {
	return s.queryPositions(ctx, `SELECT `+positionCols+` FROM positions ORDER BY symbol`)
}

func (s *Store) queryPositions(ctx context.Context, q string, args ...any) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) TransitionPosition(ctx context.Context, symbol string, to types.PositionStatus, from ...types.PositionStatus) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("transition position: no source status")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	args := []any{string(to), formatTS(time.Now()), symbol}
	for _, f := range from {
		args = append(args, string(f))
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE positions SET status = ?, updated_at = ? WHERE symbol = ? AND status IN (`+placeholders(len(from))+`)`), args...)
	if err != nil {
		return false, fmt.Errorf("transition position %s: %w", symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeTerminal deletes TARGET_HIT and SOLD rows in one transaction.
func (s *Store) PurgeTerminal(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	terminal := []any{string(types.StatusTargetHit), string(types.StatusSold)}
	rows, err := tx.QueryContext(ctx, s.rebind(`SELECT symbol FROM positions WHERE status IN (?, ?) ORDER BY symbol`), terminal...)
	if err != nil {
		return nil, err
	}
	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			rows.Close()
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM positions WHERE status IN (?, ?)`), terminal...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return symbols, nil
}
