package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// PostgresStore persists orders, audit events, charges and latency in the orders schema
// ⭐ SSOT: 주문 데이터 저장/조회는 여기서만
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store on an existing pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `
	order_id, COALESCE(broker_order_id, ''), COALESCE(correlation_id, ''), COALESCE(parent_order_id, ''),
	user_id, broker, COALESCE(tag, ''), COALESCE(strategy_tag, ''), COALESCE(exchange, ''), COALESCE(symbol, ''),
	instrument_key, side, order_type, product, quantity, price::text, trigger_price::text,
	disclosed_quantity, validity, status, filled_quantity, average_price::text,
	placed_at, acknowledged_at, final_status_at, updated_at`

// PutOrder upserts an order
func (s *PostgresStore) PutOrder(ctx context.Context, o contracts.Order) error {
	query := `
		INSERT INTO orders.orders (
			order_id, broker_order_id, correlation_id, parent_order_id, user_id, broker, tag, strategy_tag,
			exchange, symbol, instrument_key, side, order_type, product, quantity, price, trigger_price,
			disclosed_quantity, validity, status, filled_quantity, average_price,
			placed_at, acknowledged_at, final_status_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16::numeric, $17::numeric,
			$18, $19, $20, $21, $22::numeric, $23, $24, $25, $26)
		ON CONFLICT (order_id) DO UPDATE SET
			broker_order_id = EXCLUDED.broker_order_id,
			order_type = EXCLUDED.order_type,
			quantity = EXCLUDED.quantity,
			price = EXCLUDED.price,
			trigger_price = EXCLUDED.trigger_price,
			disclosed_quantity = EXCLUDED.disclosed_quantity,
			validity = EXCLUDED.validity,
			status = EXCLUDED.status,
			filled_quantity = EXCLUDED.filled_quantity,
			average_price = EXCLUDED.average_price,
			acknowledged_at = EXCLUDED.acknowledged_at,
			final_status_at = EXCLUDED.final_status_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		o.OrderID, o.BrokerOrderID, o.CorrelationID, o.ParentOrderID, o.UserID, o.Broker, o.Tag, o.StrategyTag,
		o.Exchange, o.Symbol, o.InstrumentKey, string(o.Side), string(o.OrderType), string(o.Product),
		o.Quantity, o.Price.String(), o.TriggerPrice.String(),
		o.DisclosedQuantity, string(o.Validity), string(o.Status), o.FilledQuantity, o.AveragePrice.String(),
		o.PlacedAt, o.AcknowledgedAt, o.FinalStatusAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// GetOrder retrieves an order by ID
func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (contracts.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders.orders WHERE order_id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return contracts.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// OrdersByUser retrieves a user's orders
func (s *PostgresStore) OrdersByUser(ctx context.Context, userID string) ([]contracts.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders.orders WHERE user_id = $1 ORDER BY placed_at DESC`, userID)
}

// AllOrders retrieves every order
func (s *PostgresStore) AllOrders(ctx context.Context) ([]contracts.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders.orders ORDER BY placed_at DESC`)
}

func (s *PostgresStore) queryOrders(ctx context.Context, query string, args ...interface{}) ([]contracts.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]contracts.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (contracts.Order, error) {
	var (
		o                                 contracts.Order
		side, orderType, product          string
		validity, status                  string
		price, triggerPrice, averagePrice string
	)
	err := row.Scan(
		&o.OrderID, &o.BrokerOrderID, &o.CorrelationID, &o.ParentOrderID,
		&o.UserID, &o.Broker, &o.Tag, &o.StrategyTag, &o.Exchange, &o.Symbol,
		&o.InstrumentKey, &side, &orderType, &product, &o.Quantity, &price, &triggerPrice,
		&o.DisclosedQuantity, &validity, &status, &o.FilledQuantity, &averagePrice,
		&o.PlacedAt, &o.AcknowledgedAt, &o.FinalStatusAt, &o.UpdatedAt,
	)
	if err != nil {
		return contracts.Order{}, err
	}

	o.Side = contracts.OrderSide(side)
	o.OrderType = contracts.OrderType(orderType)
	o.Product = contracts.Product(product)
	o.Validity = contracts.Validity(validity)
	o.Status = contracts.Status(status)
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return contracts.Order{}, fmt.Errorf("price: %w", err)
	}
	if o.TriggerPrice, err = decimal.NewFromString(triggerPrice); err != nil {
		return contracts.Order{}, fmt.Errorf("trigger price: %w", err)
	}
	if o.AveragePrice, err = decimal.NewFromString(averagePrice); err != nil {
		return contracts.Order{}, fmt.Errorf("average price: %w", err)
	}
	return o, nil
}

// AppendAudit inserts an event and returns it with its sequence number
func (s *PostgresStore) AppendAudit(ctx context.Context, event contracts.AuditEvent) (contracts.AuditEvent, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return event, fmt.Errorf("failed to encode audit payload: %w", err)
	}

	query := `
		INSERT INTO orders.audit_events (order_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING seq
	`
	if err := s.pool.QueryRow(ctx, query, event.OrderID, string(event.EventType), payload, event.CreatedAt).Scan(&event.Seq); err != nil {
		return event, fmt.Errorf("failed to append audit event: %w", err)
	}
	return event, nil
}

// AuditLog returns an order's events in append order
func (s *PostgresStore) AuditLog(ctx context.Context, orderID string) ([]contracts.AuditEvent, error) {
	query := `
		SELECT seq, order_id, event_type, payload, created_at
		FROM orders.audit_events
		WHERE order_id = $1
		ORDER BY seq ASC
	`
	rows, err := s.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	events := make([]contracts.AuditEvent, 0)
	for rows.Next() {
		var (
			e         contracts.AuditEvent
			eventType string
			payload   []byte
		)
		if err := rows.Scan(&e.Seq, &e.OrderID, &eventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.EventType = contracts.AuditEventType(eventType)
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}

// PutCharges upserts an order's charge breakdown
func (s *PostgresStore) PutCharges(ctx context.Context, c contracts.OrderCharges) error {
	query := `
		INSERT INTO orders.charges (
			order_id, brokerage, exchange_txn_charge, sebi_fee, stt, stamp_duty, gst, ipf, total, currency, calculated_at
		) VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10, $11)
		ON CONFLICT (order_id) DO UPDATE SET
			brokerage = EXCLUDED.brokerage,
			exchange_txn_charge = EXCLUDED.exchange_txn_charge,
			sebi_fee = EXCLUDED.sebi_fee,
			stt = EXCLUDED.stt,
			stamp_duty = EXCLUDED.stamp_duty,
			gst = EXCLUDED.gst,
			ipf = EXCLUDED.ipf,
			total = EXCLUDED.total,
			calculated_at = EXCLUDED.calculated_at
	`
	_, err := s.pool.Exec(ctx, query,
		c.OrderID, c.Brokerage.String(), c.ExchangeTxnCharge.String(), c.SEBIFee.String(), c.STT.String(),
		c.StampDuty.String(), c.GST.String(), c.IPF.String(), c.Total.String(), c.Currency, c.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save charges: %w", err)
	}
	return nil
}

// GetCharges retrieves an order's charges, nil when none were recorded
func (s *PostgresStore) GetCharges(ctx context.Context, orderID string) (*contracts.OrderCharges, error) {
	query := `
		SELECT order_id, brokerage::text, exchange_txn_charge::text, sebi_fee::text, stt::text,
		       stamp_duty::text, gst::text, ipf::text, total::text, currency, calculated_at
		FROM orders.charges
		WHERE order_id = $1
	`
	var (
		c      contracts.OrderCharges
		values [8]string
	)
	err := s.pool.QueryRow(ctx, query, orderID).Scan(
		&c.OrderID, &values[0], &values[1], &values[2], &values[3],
		&values[4], &values[5], &values[6], &values[7], &c.Currency, &c.CalculatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get charges: %w", err)
	}

	targets := []*decimal.Decimal{&c.Brokerage, &c.ExchangeTxnCharge, &c.SEBIFee, &c.STT, &c.StampDuty, &c.GST, &c.IPF, &c.Total}
	for i, target := range targets {
		if *target, err = decimal.NewFromString(values[i]); err != nil {
			return nil, fmt.Errorf("failed to decode charges: %w", err)
		}
	}
	return &c, nil
}

// PutLatency upserts an order's latency breakdown
func (s *PostgresStore) PutLatency(ctx context.Context, l contracts.LatencyMetrics) error {
	query := `
		INSERT INTO orders.latency (
			order_id, broker_latency_ms, system_latency_ms, network_latency_ms, total_latency_ms, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			broker_latency_ms = EXCLUDED.broker_latency_ms,
			system_latency_ms = EXCLUDED.system_latency_ms,
			network_latency_ms = EXCLUDED.network_latency_ms,
			total_latency_ms = EXCLUDED.total_latency_ms,
			recorded_at = EXCLUDED.recorded_at
	`
	_, err := s.pool.Exec(ctx, query,
		l.OrderID, l.BrokerLatencyMs, l.SystemLatencyMs, l.NetworkLatencyMs, l.TotalLatencyMs, l.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save latency: %w", err)
	}
	return nil
}

// GetLatency retrieves an order's latency, nil when none was recorded
func (s *PostgresStore) GetLatency(ctx context.Context, orderID string) (*contracts.LatencyMetrics, error) {
	query := `
		SELECT order_id, broker_latency_ms, system_latency_ms, network_latency_ms, total_latency_ms, recorded_at
		FROM orders.latency
		WHERE order_id = $1
	`
	var l contracts.LatencyMetrics
	err := s.pool.QueryRow(ctx, query, orderID).Scan(
		&l.OrderID, &l.BrokerLatencyMs, &l.SystemLatencyMs, &l.NetworkLatencyMs, &l.TotalLatencyMs, &l.RecordedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latency: %w", err)
	}
	return &l, nil
}
