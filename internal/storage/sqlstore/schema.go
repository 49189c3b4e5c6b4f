package sqlstore

import "context"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS positions (
  symbol TEXT PRIMARY KEY,
  quantity INTEGER NOT NULL,
  avg_buy_price TEXT NOT NULL,
  buy_timestamp TEXT NOT NULL,
  target_price TEXT NOT NULL,
  status TEXT NOT NULL,
  product_type TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS conditional_orders (
  remote_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  trigger_type TEXT NOT NULL,
  trigger_price TEXT NOT NULL,
  last_price TEXT,
  order_kind TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  limit_price TEXT,
  trigger_condition TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  meta TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_conditional_active ON conditional_orders(symbol) WHERE status = 'ACTIVE';
CREATE INDEX IF NOT EXISTS idx_conditional_status ON conditional_orders(status);

CREATE TABLE IF NOT EXISTS trades (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  symbol TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  side TEXT NOT NULL,
  price TEXT NOT NULL,
  ts TEXT NOT NULL,
  order_id TEXT NOT NULL,
  simulated INTEGER NOT NULL,
  meta TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS positions (
  symbol TEXT PRIMARY KEY,
  quantity INTEGER NOT NULL,
  avg_buy_price NUMERIC(18,4) NOT NULL,
  buy_timestamp TEXT NOT NULL,
  target_price NUMERIC(18,4) NOT NULL,
  status TEXT NOT NULL,
  product_type TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);

CREATE TABLE IF NOT EXISTS conditional_orders (
  remote_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  trigger_type TEXT NOT NULL,
  trigger_price NUMERIC(18,4) NOT NULL,
  last_price NUMERIC(18,4),
  order_kind TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  limit_price NUMERIC(18,4),
  trigger_condition TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  meta TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_conditional_active ON conditional_orders(symbol) WHERE status = 'ACTIVE';
CREATE INDEX IF NOT EXISTS idx_conditional_status ON conditional_orders(status);

CREATE TABLE IF NOT EXISTS trades (
  id BIGSERIAL PRIMARY KEY,
  symbol TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  side TEXT NOT NULL,
  price NUMERIC(18,4) NOT NULL,
  ts TEXT NOT NULL,
  order_id TEXT NOT NULL,
  simulated BOOLEAN NOT NULL,
  meta TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades(ts);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
`

func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
