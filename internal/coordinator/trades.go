package coordinator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// TradeFilter selects a user's trades; zero fields match everything
type TradeFilter struct {
	UserID  string
	Segment string
	From    time.Time // inclusive
	To      time.Time // exclusive
}

func (f TradeFilter) matches(t contracts.Trade) bool {
	if f.UserID != "" && t.UserID != f.UserID {
		return false
	}
	if f.Segment != "" && t.Segment != f.Segment {
		return false
	}
	if !f.From.IsZero() && t.TradedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !t.TradedAt.Before(f.To) {
		return false
	}
	return true
}

// TradeStore keeps executions. PutTrade ignores a trade id it already holds.
type TradeStore interface {
	PutTrade(ctx context.Context, trade contracts.Trade) (bool, error)
	TradesForOrder(ctx context.Context, orderID string) ([]contracts.Trade, error)
	FindTrades(ctx context.Context, filter TradeFilter) ([]contracts.Trade, error) // oldest first
}

// ============================================================
// Memory
// ============================================================

// MemoryTradeStore indexes trades by id and by order id
type MemoryTradeStore struct {
	mu      sync.RWMutex
	byID    map[string]contracts.Trade
	byOrder map[string][]string
}

// NewMemoryTradeStore creates an empty store
func NewMemoryTradeStore() *MemoryTradeStore {
	return &MemoryTradeStore{
		byID:    make(map[string]contracts.Trade),
		byOrder: make(map[string][]string),
	}
}

// PutTrade stores a trade; it reports false when the id was already present
func (s *MemoryTradeStore) PutTrade(_ context.Context, trade contracts.Trade) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[trade.TradeID]; ok {
		return false, nil
	}
	s.byID[trade.TradeID] = trade
	s.byOrder[trade.OrderID] = append(s.byOrder[trade.OrderID], trade.TradeID)
	return true, nil
}

// TradesForOrder returns an order's trades in registration order
func (s *MemoryTradeStore) TradesForOrder(_ context.Context, orderID string) ([]contracts.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byOrder[orderID]
	out := make([]contracts.Trade, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// FindTrades returns matching trades, oldest first
func (s *MemoryTradeStore) FindTrades(_ context.Context, filter TradeFilter) ([]contracts.Trade, error) {
	s.mu.RLock()
	out := make([]contracts.Trade, 0)
	for _, t := range s.byID {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TradedAt.Equal(out[j].TradedAt) {
			return out[i].TradedAt.Before(out[j].TradedAt)
		}
		return out[i].TradeID < out[j].TradeID
	})
	return out, nil
}

// ============================================================
// Postgres
// ============================================================

// PostgresTradeStore reads and writes orders.trades
type PostgresTradeStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTradeStore creates a store on an existing pool
func NewPostgresTradeStore(pool *pgxpool.Pool) *PostgresTradeStore {
	return &PostgresTradeStore{pool: pool}
}

const tradeColumns = `
	trade_id, order_id, COALESCE(exchange_order_id, ''), user_id, COALESCE(exchange, ''), COALESCE(segment, ''),
	instrument_key, side, quantity, price::text, traded_at, created_at`

// PutTrade inserts a trade unless its id exists
func (s *PostgresTradeStore) PutTrade(ctx context.Context, t contracts.Trade) (bool, error) {
	query := `
		INSERT INTO orders.trades (
			trade_id, order_id, exchange_order_id, user_id, exchange, segment,
			instrument_key, side, quantity, price, traded_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11, $12)
		ON CONFLICT (trade_id) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query,
		t.TradeID, t.OrderID, t.ExchangeOrderID, t.UserID, t.Exchange, t.Segment,
		t.InstrumentKey, string(t.Side), t.Quantity, t.Price.String(), t.TradedAt, t.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save trade: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TradesForOrder returns an order's trades, oldest first
func (s *PostgresTradeStore) TradesForOrder(ctx context.Context, orderID string) ([]contracts.Trade, error) {
	return s.query(ctx, `SELECT `+tradeColumns+` FROM orders.trades WHERE order_id = $1 ORDER BY traded_at, trade_id`, orderID)
}

// FindTrades applies the filter in SQL
func (s *PostgresTradeStore) FindTrades(ctx context.Context, f TradeFilter) ([]contracts.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM orders.trades
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR segment = $2)
		  AND ($3::timestamptz IS NULL OR traded_at >= $3)
		  AND ($4::timestamptz IS NULL OR traded_at < $4)
		ORDER BY traded_at, trade_id`
	return s.query(ctx, query, f.UserID, f.Segment, nullableTime(f.From), nullableTime(f.To))
}

func (s *PostgresTradeStore) query(ctx context.Context, query string, args ...interface{}) ([]contracts.Trade, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]contracts.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return trades, nil
}

func scanTrade(row pgx.Row) (contracts.Trade, error) {
	var (
		t           contracts.Trade
		side, price string
	)
	err := row.Scan(
		&t.TradeID, &t.OrderID, &t.ExchangeOrderID, &t.UserID, &t.Exchange, &t.Segment,
		&t.InstrumentKey, &side, &t.Quantity, &price, &t.TradedAt, &t.CreatedAt,
	)
	if err != nil {
		return contracts.Trade{}, err
	}
	t.Side = contracts.OrderSide(side)
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return contracts.Trade{}, fmt.Errorf("trade %s price: %w", t.TradeID, err)
	}
	return t, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
