package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Endpoint paths used for rate limiting; mirror the Upstox v2 routes
const (
	pathPlace       = "/order/place"
	pathMultiPlace  = "/order/multi/place"
	pathModify      = "/order/modify"
	pathCancel      = "/order/cancel"
	pathOrderBook   = "/order/retrieve-all"
	pathOrderDetail = "/order/details"
	pathTrades      = "/order/trades/get-trades-for-day"
	pathExit        = "/order/positions/exit"
)

// Paper operations passed to a FailureFunc
const (
	OpPlace  = "place"
	OpModify = "modify"
	OpCancel = "cancel"
)

// defaultPaperPrice fills MARKET orders without a set price
var defaultPaperPrice = decimal.NewFromInt(100)

// FailureFunc lets tests make the paper venue refuse an operation.
// key is the correlation id for place and the broker order id otherwise.
type FailureFunc func(op, key string) (contracts.ErrorCode, string, bool)

// PaperAdapter is an in-process simulated venue
// ⭐ 실제 운영에서는 UpstoxAdapter 사용
//
// MARKET orders fill immediately; LIMIT and stop orders rest OPEN until Fill.
type PaperAdapter struct {
	name       string
	capability Capability
	limiter    *ratelimit.Manager
	clock      clock.Clock
	logger     *logger.Logger

	mu        sync.Mutex
	orders    map[string]*BrokerOrder
	sequence  []string // placement order
	trades    []BrokerTrade
	prices    map[string]decimal.Decimal
	failure   FailureFunc
	delay     time.Duration
	available bool
}

// NewPaperAdapter creates a paper venue; limiter may be nil
func NewPaperAdapter(capability Capability, limiter *ratelimit.Manager, clk clock.Clock, log *logger.Logger) *PaperAdapter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &PaperAdapter{
		name:       strings.ToUpper(capability.BrokerName),
		capability: capability,
		limiter:    limiter,
		clock:      clk,
		logger:     log.WithComponent("paper_broker").WithBroker(capability.BrokerName),
		orders:     make(map[string]*BrokerOrder),
		prices:     make(map[string]decimal.Decimal),
		available:  true,
	}
}

// Name returns the broker name
func (p *PaperAdapter) Name() string { return p.name }

// Capabilities returns the venue capability
func (p *PaperAdapter) Capabilities() Capability { return p.capability }

// SetPrice sets the fill price for MARKET orders on an instrument
func (p *PaperAdapter) SetPrice(instrumentKey string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[instrumentKey] = price
}

// SetFailureFunc installs a refusal hook (nil clears it)
func (p *PaperAdapter) SetFailureFunc(f FailureFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failure = f
}

// SetDelay makes every venue call take d; a call whose ctx ends first times out
func (p *PaperAdapter) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// SetAvailable toggles IsAvailable
func (p *PaperAdapter) SetAvailable(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = ok
}

// ============================================================
// Placement
// ============================================================

// PlaceOrder places one order
func (p *PaperAdapter) PlaceOrder(ctx context.Context, req OrderRequest) OrderResult {
	start := p.clock.Now()
	if res, ok := p.gate(ctx, pathPlace, req.CorrelationID); !ok {
		return res
	}
	res := p.place(req)
	res.Latency = p.clock.Now().Sub(start)
	return res
}

// PlaceMultiOrder places a batch, BUY lines first
func (p *PaperAdapter) PlaceMultiOrder(ctx context.Context, reqs []OrderRequest) MultiOrderResult {
	start := p.clock.Now()

	if len(reqs) > p.capability.BatchSize() {
		results := make([]OrderResult, len(reqs))
		msg := fmt.Sprintf("batch of %d exceeds %s limit of %d", len(reqs), p.name, p.capability.BatchSize())
		for i, r := range reqs {
			results[i] = Failed(r.CorrelationID, contracts.ErrCodeBrokerError, msg)
		}
		return NewMultiOrderResult(results, p.clock.Now().Sub(start))
	}

	path := pathMultiPlace
	if !p.capability.SupportsMultiOrder {
		path = pathPlace
	}
	if res, ok := p.gate(ctx, path, ""); !ok {
		results := make([]OrderResult, len(reqs))
		for i, r := range reqs {
			results[i] = res
			results[i].CorrelationID = r.CorrelationID
		}
		return NewMultiOrderResult(results, p.clock.Now().Sub(start))
	}

	ordered := splitBySide(reqs)
	results := make([]OrderResult, 0, len(ordered))
	for _, r := range ordered {
		results = append(results, p.place(r))
	}
	return NewMultiOrderResult(results, p.clock.Now().Sub(start))
}

func (p *PaperAdapter) place(req OrderRequest) OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if res, refused := p.refuse(OpPlace, req.CorrelationID, contracts.ErrCodeBrokerError); refused {
		res.CorrelationID = req.CorrelationID
		return res
	}
	if req.Quantity <= 0 {
		return Failed(req.CorrelationID, contracts.ErrCodeBrokerError, "quantity must be positive")
	}
	if !p.capability.SupportsOrderType(req.OrderType) {
		return Failed(req.CorrelationID, contracts.ErrCodeBrokerError,
			fmt.Sprintf("order type %s not supported by %s", req.OrderType, p.name))
	}

	now := p.clock.Now()
	order := &BrokerOrder{
		BrokerOrderID:   "PAPER-" + uuid.NewString(),
		ExchangeOrderID: fmt.Sprintf("%d", now.UnixNano()),
		InstrumentKey:   req.InstrumentKey,
		Side:            req.Side,
		OrderType:       req.OrderType,
		Quantity:        req.Quantity,
		Price:           req.Price,
		Status:          contracts.StatusOpen,
		Tag:             req.Tag,
	}
	p.orders[order.BrokerOrderID] = order
	p.sequence = append(p.sequence, order.BrokerOrderID)

	if req.OrderType == contracts.OrderTypeMarket {
		p.fill(order, order.Quantity, p.marketPrice(req), now)
	}

	p.logger.WithFields(map[string]interface{}{
		"broker_order_id": order.BrokerOrderID,
		"correlation_id":  req.CorrelationID,
		"side":            req.Side,
		"quantity":        req.Quantity,
	}).Debug("Paper order placed")

	return OrderResult{
		Success:       true,
		BrokerOrderID: order.BrokerOrderID,
		CorrelationID: req.CorrelationID,
		Status:        contracts.StatusAcknowledged,
		Message:       "Order placed",
	}
}

func (p *PaperAdapter) marketPrice(req OrderRequest) decimal.Decimal {
	if price, ok := p.prices[req.InstrumentKey]; ok {
		return price
	}
	if req.Price.IsPositive() {
		return req.Price
	}
	return defaultPaperPrice
}

// fill executes qty at price; caller holds mu
func (p *PaperAdapter) fill(order *BrokerOrder, qty int, price decimal.Decimal, at time.Time) {
	if qty > order.Quantity-order.FilledQuantity {
		qty = order.Quantity - order.FilledQuantity
	}
	if qty <= 0 {
		return
	}

	filledValue := order.AveragePrice.Mul(decimal.NewFromInt(int64(order.FilledQuantity)))
	filledValue = filledValue.Add(price.Mul(decimal.NewFromInt(int64(qty))))
	order.FilledQuantity += qty
	order.AveragePrice = filledValue.Div(decimal.NewFromInt(int64(order.FilledQuantity))).Round(2)

	if order.FilledQuantity == order.Quantity {
		order.Status = contracts.StatusFilled
	} else {
		order.Status = contracts.StatusPartiallyFilled
	}

	p.trades = append(p.trades, BrokerTrade{
		TradeID:         "PT-" + uuid.NewString(),
		BrokerOrderID:   order.BrokerOrderID,
		ExchangeOrderID: order.ExchangeOrderID,
		InstrumentKey:   order.InstrumentKey,
		Side:            order.Side,
		Quantity:        qty,
		Price:           price,
		TradedAt:        at,
	})
}

// Fill simulates an execution against a resting order
func (p *PaperAdapter) Fill(brokerOrderID string, qty int, price decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("paper order %s not found", brokerOrderID)
	}
	if order.Status.IsComplete() {
		return fmt.Errorf("paper order %s is %s", brokerOrderID, order.Status)
	}
	p.fill(order, qty, price, p.clock.Now())
	return nil
}

// ============================================================
// Modify / Cancel
// ============================================================

// ModifyOrder modifies a resting order
func (p *PaperAdapter) ModifyOrder(ctx context.Context, req ModifyRequest) OrderResult {
	start := p.clock.Now()
	if res, ok := p.gate(ctx, pathModify, ""); !ok {
		return res
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.capability.SupportsModify {
		return Failed("", contracts.ErrCodeModifyFailed, p.name+" does not support modify")
	}
	if res, refused := p.refuse(OpModify, req.BrokerOrderID, contracts.ErrCodeModifyFailed); refused {
		return res
	}
	order, ok := p.orders[req.BrokerOrderID]
	if !ok {
		return Failed("", contracts.ErrCodeModifyFailed, "order not found at venue")
	}
	if order.Status.IsComplete() {
		return Failed("", contracts.ErrCodeModifyFailed, "order is "+string(order.Status))
	}

	if req.Quantity != nil {
		if *req.Quantity < order.FilledQuantity {
			return Failed("", contracts.ErrCodeModifyFailed, "quantity below filled quantity")
		}
		order.Quantity = *req.Quantity
	}
	if req.Price != nil {
		order.Price = *req.Price
	}
	if req.OrderType != nil {
		order.OrderType = *req.OrderType
	}

	return OrderResult{
		Success:       true,
		BrokerOrderID: order.BrokerOrderID,
		Status:        order.Status,
		Message:       "Order modified",
		Latency:       p.clock.Now().Sub(start),
	}
}

// CancelOrder cancels a resting order
func (p *PaperAdapter) CancelOrder(ctx context.Context, brokerOrderID string) OrderResult {
	start := p.clock.Now()
	if res, ok := p.gate(ctx, pathCancel, ""); !ok {
		return res
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if res, refused := p.refuse(OpCancel, brokerOrderID, contracts.ErrCodeCancelFailed); refused {
		return res
	}
	order, ok := p.orders[brokerOrderID]
	if !ok {
		return Failed("", contracts.ErrCodeCancelFailed, "order not found at venue")
	}
	if order.Status.IsComplete() {
		return Failed("", contracts.ErrCodeCancelFailed, "order is "+string(order.Status))
	}
	order.Status = contracts.StatusCancelled

	return OrderResult{
		Success:       true,
		BrokerOrderID: brokerOrderID,
		Status:        contracts.StatusCancelled,
		Message:       "Order cancelled",
		Latency:       p.clock.Now().Sub(start),
	}
}

// CancelMultiOrder cancels each order in turn
func (p *PaperAdapter) CancelMultiOrder(ctx context.Context, brokerOrderIDs []string) MultiOrderResult {
	start := p.clock.Now()
	results := make([]OrderResult, 0, len(brokerOrderIDs))
	for _, id := range brokerOrderIDs {
		results = append(results, p.CancelOrder(ctx, id))
	}
	return NewMultiOrderResult(results, p.clock.Now().Sub(start))
}

// ============================================================
// Queries
// ============================================================

// GetOrderStatus returns the venue view of an order
func (p *PaperAdapter) GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatus, error) {
	if err := p.wait(ctx, pathOrderDetail); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[brokerOrderID]
	if !ok {
		return nil, fmt.Errorf("paper order %s not found", brokerOrderID)
	}
	return &OrderStatus{
		BrokerOrderID:   order.BrokerOrderID,
		Status:          order.Status,
		FilledQuantity:  order.FilledQuantity,
		PendingQuantity: order.Quantity - order.FilledQuantity,
		AveragePrice:    order.AveragePrice,
	}, nil
}

// GetOrderBook returns all orders in placement order
func (p *PaperAdapter) GetOrderBook(ctx context.Context) ([]BrokerOrder, error) {
	if err := p.wait(ctx, pathOrderBook); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	book := make([]BrokerOrder, 0, len(p.sequence))
	for _, id := range p.sequence {
		book = append(book, *p.orders[id])
	}
	return book, nil
}

// GetTradesForDay returns today's executions
func (p *PaperAdapter) GetTradesForDay(ctx context.Context) ([]BrokerTrade, error) {
	if err := p.wait(ctx, pathTrades); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	y, m, d := p.clock.Now().Date()
	out := make([]BrokerTrade, 0, len(p.trades))
	for _, t := range p.trades {
		ty, tm, td := t.TradedAt.Date()
		if ty == y && tm == m && td == d {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetOrderTrades returns executions of one order
func (p *PaperAdapter) GetOrderTrades(ctx context.Context, brokerOrderID string) ([]BrokerTrade, error) {
	if err := p.wait(ctx, pathTrades); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]BrokerTrade, 0)
	for _, t := range p.trades {
		if t.BrokerOrderID == brokerOrderID {
			out = append(out, t)
		}
	}
	return out, nil
}

// ExitAllPositions squares off filled quantity with opposite MARKET orders, long positions first
func (p *PaperAdapter) ExitAllPositions(ctx context.Context, segment, tag string) MultiOrderResult {
	start := p.clock.Now()
	if !p.capability.SupportsExitAll {
		res := Failed("", contracts.ErrCodeBrokerError, p.name+" does not support exit all positions")
		return NewMultiOrderResult([]OrderResult{res}, 0)
	}
	if res, ok := p.gate(ctx, pathExit, ""); !ok {
		return NewMultiOrderResult([]OrderResult{res}, p.clock.Now().Sub(start))
	}

	p.mu.Lock()
	type position struct {
		instrument string
		net        int
	}
	net := make(map[string]int)
	for _, id := range p.sequence {
		o := p.orders[id]
		if o.FilledQuantity == 0 || !matchesFilter(o.InstrumentKey, o.Tag, segment, tag) {
			continue
		}
		if o.Side == contracts.OrderSideBuy {
			net[o.InstrumentKey] += o.FilledQuantity
		} else {
			net[o.InstrumentKey] -= o.FilledQuantity
		}
	}
	positions := make([]position, 0, len(net))
	for instrument, qty := range net {
		if qty != 0 {
			positions = append(positions, position{instrument, qty})
		}
	}
	p.mu.Unlock()

	sort.Slice(positions, func(i, j int) bool {
		if (positions[i].net > 0) != (positions[j].net > 0) {
			return positions[i].net > 0
		}
		return positions[i].instrument < positions[j].instrument
	})

	results := make([]OrderResult, 0, len(positions))
	for _, pos := range positions {
		req := OrderRequest{
			CorrelationID: "EXIT-" + pos.instrument,
			InstrumentKey: pos.instrument,
			Side:          contracts.OrderSideSell,
			OrderType:     contracts.OrderTypeMarket,
			Quantity:      pos.net,
			Tag:           tag,
		}
		if pos.net < 0 {
			req.Side = contracts.OrderSideBuy
			req.Quantity = -pos.net
		}
		results = append(results, p.place(req))
	}
	return NewMultiOrderResult(results, p.clock.Now().Sub(start))
}

// IsAvailable reports whether the venue accepts calls
func (p *PaperAdapter) IsAvailable(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// RateLimitStatus reports the remaining standard per-minute budget
func (p *PaperAdapter) RateLimitStatus(ctx context.Context) RateLimitStatus {
	return rateLimitStatus(ctx, p.limiter, p.capability)
}

// ============================================================
// Helpers
// ============================================================

// gate applies delay, availability and the outbound rate limiter
func (p *PaperAdapter) gate(ctx context.Context, path, correlationID string) (OrderResult, bool) {
	if err := p.wait(ctx, path); err != nil {
		return Failed(correlationID, errorCode(err, contracts.ErrCodeBrokerError), err.Error()), false
	}
	return OrderResult{}, true
}

func (p *PaperAdapter) wait(ctx context.Context, path string) error {
	p.mu.Lock()
	delay, available := p.delay, p.available
	p.mu.Unlock()

	if !available {
		return errVenueUnavailable
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, path); err != nil {
			return err
		}
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(delay):
		}
	}
	return ctx.Err()
}

// refuse consults the failure hook; caller holds mu
func (p *PaperAdapter) refuse(op, key string, fallback contracts.ErrorCode) (OrderResult, bool) {
	if p.failure == nil {
		return OrderResult{}, false
	}
	code, msg, refused := p.failure(op, key)
	if !refused {
		return OrderResult{}, false
	}
	if code == "" {
		code = fallback
	}
	return Failed("", code, msg), true
}

var errVenueUnavailable = errors.New("venue unavailable")

// matchesFilter applies the exit/cancel segment and tag filters
func matchesFilter(instrumentKey, orderTag, segment, tag string) bool {
	if segment != "" && !strings.Contains(contracts.SegmentOf(instrumentKey), strings.ToUpper(segment)) {
		return false
	}
	if tag != "" && orderTag != tag {
		return false
	}
	return true
}
