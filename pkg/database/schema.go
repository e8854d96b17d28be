package database

// schema is applied in order by Migrate; every statement is idempotent
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS orders`,

	`CREATE TABLE IF NOT EXISTS orders.orders (
		order_id            TEXT PRIMARY KEY,
		broker_order_id     TEXT,
		correlation_id      TEXT,
		parent_order_id     TEXT,
		user_id             TEXT NOT NULL,
		broker              TEXT NOT NULL,
		tag                 TEXT,
		strategy_tag        TEXT,
		exchange            TEXT,
		symbol              TEXT,
		instrument_key      TEXT NOT NULL,
		side                TEXT NOT NULL,
		order_type          TEXT NOT NULL,
		product             TEXT NOT NULL,
		quantity            INTEGER NOT NULL,
		price               NUMERIC(18,4) NOT NULL DEFAULT 0,
		trigger_price       NUMERIC(18,4) NOT NULL DEFAULT 0,
		disclosed_quantity  INTEGER NOT NULL DEFAULT 0,
		validity            TEXT NOT NULL,
		status              TEXT NOT NULL,
		filled_quantity     INTEGER NOT NULL DEFAULT 0,
		average_price       NUMERIC(18,4) NOT NULL DEFAULT 0,
		placed_at           TIMESTAMPTZ NOT NULL,
		acknowledged_at     TIMESTAMPTZ,
		final_status_at     TIMESTAMPTZ,
		updated_at          TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_orders_user_placed ON orders.orders (user_id, placed_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders.orders (status)`,

	`CREATE TABLE IF NOT EXISTS orders.audit_events (
		seq         BIGSERIAL PRIMARY KEY,
		order_id    TEXT NOT NULL,
		event_type  TEXT NOT NULL,
		payload     JSONB NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_audit_order ON orders.audit_events (order_id, seq)`,

	`CREATE TABLE IF NOT EXISTS orders.trades (
		trade_id           TEXT PRIMARY KEY,
		order_id           TEXT NOT NULL,
		exchange_order_id  TEXT,
		user_id            TEXT NOT NULL,
		exchange           TEXT,
		segment            TEXT,
		instrument_key     TEXT NOT NULL,
		side               TEXT NOT NULL,
		quantity           INTEGER NOT NULL,
		price              NUMERIC(18,4) NOT NULL,
		traded_at          TIMESTAMPTZ NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_trades_user_traded ON orders.trades (user_id, traded_at DESC)`,

	`CREATE TABLE IF NOT EXISTS orders.charges (
		order_id             TEXT PRIMARY KEY,
		brokerage            NUMERIC(18,4) NOT NULL,
		exchange_txn_charge  NUMERIC(18,4) NOT NULL,
		sebi_fee             NUMERIC(18,4) NOT NULL,
		stt                  NUMERIC(18,4) NOT NULL,
		stamp_duty           NUMERIC(18,4) NOT NULL,
		gst                  NUMERIC(18,4) NOT NULL,
		ipf                  NUMERIC(18,4) NOT NULL,
		total                NUMERIC(18,4) NOT NULL,
		currency             TEXT NOT NULL,
		calculated_at        TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS orders.latency (
		order_id            TEXT PRIMARY KEY,
		broker_latency_ms   BIGINT NOT NULL,
		system_latency_ms   BIGINT NOT NULL,
		network_latency_ms  BIGINT NOT NULL,
		total_latency_ms    BIGINT NOT NULL,
		recorded_at         TIMESTAMPTZ NOT NULL
	)`,
}
