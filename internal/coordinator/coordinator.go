package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/execution"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

// Idempotency scopes; a key is only ever replayed for the operation that stored it
const (
	OpPlaceMulti   = "place_multi"
	OpModify       = "modify"
	OpCancel       = "cancel"
	OpCancelMulti  = "cancel_multi"
	OpCancelFilter = "cancel_filter"
	OpExitAll      = "exit_all"
)

// ErrHistoryQuery is returned when order history is requested without an order id or tag
var ErrHistoryQuery = errors.New("order_id or tag is required")

// Config holds the idempotency window and read view TTLs
type Config struct {
	IdempotencyTTL time.Duration
	OrderBookTTL   time.Duration
	TradesDayTTL   time.Duration
	HistoryTTL     time.Duration
	Location       *time.Location // trading day boundary
}

// DefaultConfig returns 300s idempotency and 2s / 5s / 60s read views
func DefaultConfig() Config {
	return Config{
		IdempotencyTTL: redis.TTLIdempotency,
		OrderBookTTL:   redis.TTLOrderBook,
		TradesDayTTL:   redis.TTLTradesDay,
		HistoryTTL:     redis.TTLHistory,
		Location:       time.UTC,
	}
}

// ConfigFrom builds the coordinator config from the application config
func ConfigFrom(cfg *config.Config) (Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Config{}, err
	}
	return Config{
		IdempotencyTTL: cfg.Coordinator.IdempotencyTTL,
		OrderBookTTL:   cfg.Coordinator.OrderBookTTL,
		TradesDayTTL:   cfg.Coordinator.TradesDayTTL,
		HistoryTTL:     cfg.Coordinator.HistoryTTL,
		Location:       loc,
	}, nil
}

// Reply is the encoded response of a write. A replay carries the first call's bytes.
type Reply struct {
	Body     json.RawMessage
	Replayed bool
}

// Service is the single entry point for order commands and queries
// ⭐ SSOT: 멱등성 처리와 조회 캐시는 여기서만
type Service struct {
	multi   *execution.MultiOrderService
	modify  *execution.OrderModifyService
	orders  *persistence.Orchestrator
	trades  TradeStore
	idem    IdempotencyStore
	flight  singleflight.Group
	cache   *readCache
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logger.Logger
	config  Config
}

// NewService creates the coordinator
func NewService(
	multi *execution.MultiOrderService,
	modify *execution.OrderModifyService,
	orders *persistence.Orchestrator,
	trades TradeStore,
	idem IdempotencyStore,
	cfg Config,
	clk clock.Clock,
	m *metrics.Metrics,
	log *logger.Logger,
) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	if trades == nil {
		trades = NewMemoryTradeStore()
	}
	if idem == nil {
		idem = NewMemoryIdempotency(clk)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		multi:   multi,
		modify:  modify,
		orders:  orders,
		trades:  trades,
		idem:    idem,
		cache:   newReadCache(clk),
		clock:   clk,
		metrics: m,
		logger:  log.WithComponent("coordinator"),
		config:  cfg,
	}
}

// ============================================================
// Write side
// ============================================================

// PlaceMultiOrder places a batch once per idempotency key
func (s *Service) PlaceMultiOrder(ctx context.Context, req execution.MultiOrderRequest, userID, key string) (*execution.MultiOrderResponse, Reply, error) {
	var resp execution.MultiOrderResponse
	reply, err := s.idempotent(ctx, OpPlaceMulti, userID, key, &resp, func() interface{} {
		return s.multi.PlaceMultiOrder(ctx, req, userID)
	})
	return &resp, reply, err
}

// CancelMultiOrder cancels a batch of order ids once per idempotency key
func (s *Service) CancelMultiOrder(ctx context.Context, orderIDs []string, userID, key string) (*execution.MultiOrderResponse, Reply, error) {
	var resp execution.MultiOrderResponse
	reply, err := s.idempotent(ctx, OpCancelMulti, userID, key, &resp, func() interface{} {
		return s.multi.CancelMultiOrder(ctx, orderIDs, userID)
	})
	return &resp, reply, err
}

// CancelByFilter cancels the user's open orders matching segment and tag
func (s *Service) CancelByFilter(ctx context.Context, segment, tag, userID, key string) (*execution.MultiOrderResponse, Reply, error) {
	var resp execution.MultiOrderResponse
	reply, err := s.idempotent(ctx, OpCancelFilter, userID, key, &resp, func() interface{} {
		return s.multi.CancelByFilter(ctx, segment, tag, userID)
	})
	return &resp, reply, err
}

// ExitAllPositions squares off the user's positions
func (s *Service) ExitAllPositions(ctx context.Context, segment, tag, userID, key string) (*execution.MultiOrderResponse, Reply, error) {
	var resp execution.MultiOrderResponse
	reply, err := s.idempotent(ctx, OpExitAll, userID, key, &resp, func() interface{} {
		return s.multi.ExitAllPositions(ctx, segment, tag, userID)
	})
	return &resp, reply, err
}

// ModifyOrder modifies one of the user's orders
func (s *Service) ModifyOrder(ctx context.Context, req execution.ModifyRequest, userID, key string) (execution.ModifyResult, Reply, error) {
	var res execution.ModifyResult
	reply, err := s.idempotent(ctx, OpModify, userID, key, &res, func() interface{} {
		if !s.owns(ctx, userID, req.OrderID) {
			return execution.ModifyResult{
				Status:        execution.ResultError,
				OrderID:       req.OrderID,
				UpdatedFields: []string{},
				ErrorCode:     contracts.ErrCodeOrderNotFound,
				Message:       "Order not found: " + req.OrderID,
			}
		}
		return s.modify.ModifyOrder(ctx, req)
	})
	return res, reply, err
}

// CancelOrder cancels one of the user's orders
func (s *Service) CancelOrder(ctx context.Context, orderID, userID, key string) (execution.CancelResult, Reply, error) {
	var res execution.CancelResult
	reply, err := s.idempotent(ctx, OpCancel, userID, key, &res, func() interface{} {
		if !s.owns(ctx, userID, orderID) {
			return execution.CancelResult{
				Status:    execution.ResultError,
				OrderID:   orderID,
				ErrorCode: contracts.ErrCodeOrderNotFound,
				Message:   "Order not found: " + orderID,
			}
		}
		return s.modify.CancelOrder(ctx, orderID)
	})
	return res, reply, err
}

// owns reports whether the order exists and belongs to userID; an empty userID owns everything
func (s *Service) owns(ctx context.Context, userID, orderID string) bool {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		// Missing orders are reported by the delegate
		return errors.Is(err, persistence.ErrOrderNotFound)
	}
	return userID == "" || o.UserID == userID
}

// idempotent runs exec at most once per (user, operation, key) within the window.
// Concurrent callers with the same key share one execution. The encoded
// response is decoded into dest; without a key exec always runs.
func (s *Service) idempotent(ctx context.Context, operation, userID, key string, dest interface{}, exec func() interface{}) (Reply, error) {
	if key == "" {
		body, err := json.Marshal(exec())
		if err != nil {
			return Reply{}, fmt.Errorf("encode %s response: %w", operation, err)
		}
		s.invalidateUser(userID)
		return Reply{Body: body}, json.Unmarshal(body, dest)
	}

	scoped := redis.IdempotencyKey(userID, operation, key)
	ran := false
	v, err, _ := s.flight.Do(scoped, func() (interface{}, error) {
		rec, found, err := s.idem.Get(ctx, scoped)
		if err != nil {
			return nil, err
		}
		if found {
			return rec.Response, nil
		}

		ran = true
		body, err := json.Marshal(exec())
		if err != nil {
			return nil, fmt.Errorf("encode %s response: %w", operation, err)
		}
		s.invalidateUser(userID)

		stored, err := s.idem.PutIfAbsent(ctx, IdempotencyRecord{
			Key:       scoped,
			Response:  body,
			CreatedAt: s.clock.Now(),
		}, s.config.IdempotencyTTL)
		if err != nil {
			// The write happened; only the replay guarantee is lost
			s.logger.WithFields(map[string]interface{}{
				"operation": operation,
				"key":       key,
				"error":     err.Error(),
			}).Error("Failed to store idempotency record")
			return json.RawMessage(body), nil
		}
		if !bytes.Equal(stored.Response, body) {
			s.logger.WithFields(map[string]interface{}{
				"operation": operation,
				"key":       key,
			}).Warn("Idempotency key executed concurrently on another instance")
		}
		return json.RawMessage(body), nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("idempotency %s: %w", operation, err)
	}

	body := v.(json.RawMessage)
	reply := Reply{Body: body, Replayed: !ran}
	if reply.Replayed {
		s.metrics.IdempotencyReplays.WithLabelValues(operation).Inc()
		s.logger.WithFields(map[string]interface{}{
			"operation": operation,
			"user_id":   userID,
			"key":       key,
		}).Info("Returning cached response for idempotency key")
	}
	return reply, json.Unmarshal(body, dest)
}

// invalidateUser drops the user's order views after a write
func (s *Service) invalidateUser(userID string) {
	s.cache.invalidate(redis.OrderBookKey(userID))
	s.cache.invalidate(historyPrefix(userID))
}

// ============================================================
// Read side
// ============================================================

// ViewMeta tells where a read view came from and how old it is
type ViewMeta struct {
	Source     string    `json:"source"`
	LastUpdate time.Time `json:"last_update"`
	AgeMs      int64     `json:"age_ms"`
}

// OrderBookView is the user's orders, newest first
type OrderBookView struct {
	Status string            `json:"status"`
	Data   []contracts.Order `json:"data"`
	ViewMeta
}

// OrderHistoryView is orders with their audit trails
type OrderHistoryView struct {
	Status string                 `json:"status"`
	Orders []contracts.Order      `json:"orders"`
	Events []contracts.AuditEvent `json:"events"`
	ViewMeta
}

// TradesView is a list of executions
type TradesView struct {
	Status string            `json:"status"`
	Data   []contracts.Trade `json:"data"`
	ViewMeta
}

// TradeHistoryView is one page of executions
type TradeHistoryView struct {
	Status   string            `json:"status"`
	Data     []contracts.Trade `json:"data"`
	Metadata PageMeta          `json:"metadata"`
	ViewMeta
}

type orderHistory struct {
	orders []contracts.Order
	events []contracts.AuditEvent
}

type tradePage struct {
	trades []contracts.Trade
	meta   PageMeta
}

// GetOrderBook returns the user's orders from a 2s view
func (s *Service) GetOrderBook(ctx context.Context, userID string) (*OrderBookView, error) {
	v, meta, err := s.lookup("order_book", redis.OrderBookKey(userID), s.config.OrderBookTTL, func() (interface{}, error) {
		return s.orders.GetOrdersByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return &OrderBookView{Status: "success", Data: v.([]contracts.Order), ViewMeta: meta}, nil
}

// GetOrderHistory returns one order's lifecycle, or that of every user order carrying tag
func (s *Service) GetOrderHistory(ctx context.Context, userID, orderID, tag string) (*OrderHistoryView, error) {
	if orderID == "" && tag == "" {
		return nil, ErrHistoryQuery
	}
	key := fmt.Sprintf("%s%s:%s", historyPrefix(userID), orderID, tag)
	v, meta, err := s.lookup("order_history", key, s.config.HistoryTTL, func() (interface{}, error) {
		return s.loadHistory(ctx, userID, orderID, tag)
	})
	if err != nil {
		return nil, err
	}
	h := v.(orderHistory)
	return &OrderHistoryView{Status: "success", Orders: h.orders, Events: h.events, ViewMeta: meta}, nil
}

func (s *Service) loadHistory(ctx context.Context, userID, orderID, tag string) (orderHistory, error) {
	var orders []contracts.Order
	if orderID != "" {
		o, err := s.orders.GetOrder(ctx, orderID)
		if err != nil {
			return orderHistory{}, err
		}
		if userID != "" && o.UserID != userID {
			return orderHistory{}, persistence.ErrOrderNotFound
		}
		if tag == "" || o.Tag == tag || o.StrategyTag == tag {
			orders = append(orders, o)
		}
	} else {
		all, err := s.orders.GetOrdersByUser(ctx, userID)
		if err != nil {
			return orderHistory{}, err
		}
		for _, o := range all {
			if o.Tag == tag || o.StrategyTag == tag {
				orders = append(orders, o)
			}
		}
	}

	h := orderHistory{orders: make([]contracts.Order, 0, len(orders)), events: make([]contracts.AuditEvent, 0)}
	for _, o := range orders {
		events, err := s.orders.GetAuditLog(ctx, o.OrderID)
		if err != nil {
			return orderHistory{}, err
		}
		h.orders = append(h.orders, o)
		h.events = append(h.events, events...)
	}
	return h, nil
}

// GetTradesForDay returns the user's executions of the current trading day
func (s *Service) GetTradesForDay(ctx context.Context, userID string) (*TradesView, error) {
	now := s.clock.Now().In(s.config.Location)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
	key := redis.TradesDayKey(userID, from.Format("2006-01-02"))

	v, meta, err := s.lookup("trades_day", key, s.config.TradesDayTTL, func() (interface{}, error) {
		return s.trades.FindTrades(ctx, TradeFilter{UserID: userID, From: from, To: from.AddDate(0, 0, 1)})
	})
	if err != nil {
		return nil, err
	}
	return &TradesView{Status: "success", Data: v.([]contracts.Trade), ViewMeta: meta}, nil
}

// GetTradesForOrder returns an order's executions. An order owned by another
// user is reported as persistence.ErrOrderNotFound.
func (s *Service) GetTradesForOrder(ctx context.Context, userID, orderID string) (*TradesView, error) {
	if !s.owns(ctx, userID, orderID) {
		return nil, persistence.ErrOrderNotFound
	}
	v, meta, err := s.lookup("trades_order", orderTradesKey(orderID), s.config.HistoryTTL, func() (interface{}, error) {
		return s.trades.TradesForOrder(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return &TradesView{Status: "success", Data: v.([]contracts.Trade), ViewMeta: meta}, nil
}

// GetTradeHistory returns one page of the user's executions in [from, to)
func (s *Service) GetTradeHistory(ctx context.Context, userID, segment string, from, to time.Time, page, size int) (*TradeHistoryView, error) {
	page, size = normalizePage(page, size)
	key := fmt.Sprintf("%s%s:%d:%d:%d:%d", tradeHistoryPrefix(userID), segment, from.Unix(), to.Unix(), page, size)

	v, meta, err := s.lookup("trade_history", key, s.config.HistoryTTL, func() (interface{}, error) {
		all, err := s.trades.FindTrades(ctx, TradeFilter{UserID: userID, Segment: segment, From: from, To: to})
		if err != nil {
			return nil, err
		}
		start, end, pm := Paginate(len(all), page, size)
		return tradePage{trades: all[start:end], meta: pm}, nil
	})
	if err != nil {
		return nil, err
	}
	p := v.(tradePage)
	return &TradeHistoryView{Status: "success", Data: p.trades, Metadata: p.meta, ViewMeta: meta}, nil
}

// lookup serves key from the read cache or loads and caches it
func (s *Service) lookup(view, key string, ttl time.Duration, load func() (interface{}, error)) (interface{}, ViewMeta, error) {
	if v, storedAt, ok := s.cache.get(key); ok {
		s.metrics.ReadLookups.WithLabelValues(view, SourceCache).Inc()
		return v, ViewMeta{
			Source:     SourceCache,
			LastUpdate: storedAt,
			AgeMs:      s.clock.Now().Sub(storedAt).Milliseconds(),
		}, nil
	}

	v, err := load()
	if err != nil {
		return nil, ViewMeta{}, fmt.Errorf("load %s: %w", view, err)
	}
	storedAt := s.cache.put(key, v, ttl)
	s.metrics.ReadLookups.WithLabelValues(view, SourceStore).Inc()
	return v, ViewMeta{Source: SourceStore, LastUpdate: storedAt}, nil
}

// ============================================================
// Trades
// ============================================================

// RegisterTrade stores an execution and drops the trade views it affects.
// Registering a known trade id again is a no-op.
func (s *Service) RegisterTrade(ctx context.Context, trade contracts.Trade) error {
	if trade.OrderID == "" {
		return contracts.NewError(contracts.ErrCodeValidation, "trade requires an order_id")
	}
	if trade.TradeID == "" {
		trade.TradeID = uuid.NewString()
	}
	if trade.UserID == "" || trade.Segment == "" {
		if o, err := s.orders.GetOrder(ctx, trade.OrderID); err == nil {
			trade.UserID = firstNonEmpty(trade.UserID, o.UserID)
			trade.Segment = firstNonEmpty(trade.Segment, o.Segment())
		}
	}
	trade.CreatedAt = s.clock.Now()

	inserted, err := s.trades.PutTrade(ctx, trade)
	if err != nil {
		return fmt.Errorf("register trade %s: %w", trade.TradeID, err)
	}
	if !inserted {
		return nil
	}

	s.cache.invalidate(redis.TradesDayKey(trade.UserID, ""))
	s.cache.invalidate(orderTradesKey(trade.OrderID))
	s.cache.invalidate(tradeHistoryPrefix(trade.UserID))

	s.logger.WithFields(map[string]interface{}{
		"trade_id": trade.TradeID,
		"order_id": trade.OrderID,
		"quantity": trade.Quantity,
		"price":    trade.Price.String(),
	}).Info("Trade registered")
	return nil
}

// ============================================================
// Maintenance
// ============================================================

// SweepIdempotency evicts expired idempotency records
func (s *Service) SweepIdempotency(ctx context.Context) (int, error) {
	return s.idem.Sweep(ctx)
}

// SweepReadCache evicts expired read views
func (s *Service) SweepReadCache() int {
	return s.cache.sweep()
}

func historyPrefix(userID string) string      { return "history:" + userID + ":" }
func tradeHistoryPrefix(userID string) string { return "tradehist:" + userID + ":" }
func orderTradesKey(orderID string) string    { return "ordertrades:" + orderID }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
