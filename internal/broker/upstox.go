package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/external/upstox"
	"github.com/Kvijay199428/VEGA-sub001/internal/ratelimit"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// UpstoxAdapter binds the Upstox v2 REST client to the Adapter interface.
// The client's HTTP layer is rate limited by the same Manager.
type UpstoxAdapter struct {
	client     *upstox.Client
	capability Capability
	limiter    *ratelimit.Manager
	clock      clock.Clock
	logger     *logger.Logger
}

// NewUpstoxAdapter creates the adapter; limiter is used for RateLimitStatus only
func NewUpstoxAdapter(client *upstox.Client, capability Capability, limiter *ratelimit.Manager, clk clock.Clock, log *logger.Logger) *UpstoxAdapter {
	if clk == nil {
		clk = clock.Real{}
	}
	return &UpstoxAdapter{
		client:     client,
		capability: capability,
		limiter:    limiter,
		clock:      clk,
		logger:     log.WithComponent("upstox_adapter").WithBroker(Upstox),
	}
}

// Name returns UPSTOX
func (a *UpstoxAdapter) Name() string { return Upstox }

// Capabilities returns the Upstox capability
func (a *UpstoxAdapter) Capabilities() Capability { return a.capability }

// PlaceOrder places one order
func (a *UpstoxAdapter) PlaceOrder(ctx context.Context, req OrderRequest) OrderResult {
	start := a.clock.Now()
	id, err := a.client.PlaceOrder(ctx, toUpstoxOrder(req))
	latency := a.clock.Now().Sub(start)
	if err != nil {
		a.logFailure("place", req.CorrelationID, err)
		res := Failed(req.CorrelationID, errorCode(err, contracts.ErrCodeBrokerError), err.Error())
		res.Latency = latency
		return res
	}
	return OrderResult{
		Success:       true,
		BrokerOrderID: id,
		CorrelationID: req.CorrelationID,
		Status:        contracts.StatusAcknowledged,
		Message:       "Order placed",
		Latency:       latency,
	}
}

// PlaceMultiOrder sends the batch in one call, BUY lines first.
// Lines missing from both the accepted and rejected lists are reported as BROKER_ERROR.
func (a *UpstoxAdapter) PlaceMultiOrder(ctx context.Context, reqs []OrderRequest) MultiOrderResult {
	start := a.clock.Now()
	ordered := splitBySide(reqs)

	if len(ordered) > a.capability.BatchSize() {
		msg := fmt.Sprintf("batch of %d exceeds %s limit of %d", len(ordered), Upstox, a.capability.BatchSize())
		return failAll(ordered, contracts.ErrCodeBrokerError, msg, a.clock.Now().Sub(start))
	}

	lines := make([]upstox.MultiOrderLine, len(ordered))
	for i, r := range ordered {
		lines[i] = upstox.MultiOrderLine{CorrelationID: r.CorrelationID, PlaceOrderRequest: toUpstoxOrder(r)}
	}

	refs, rejected, err := a.client.PlaceMultiOrder(ctx, lines)
	latency := a.clock.Now().Sub(start)
	if err != nil {
		a.logFailure("multi_place", "", err)
		return failAll(ordered, errorCode(err, contracts.ErrCodeBrokerError), err.Error(), latency)
	}

	accepted := make(map[string]string, len(refs))
	for _, ref := range refs {
		accepted[ref.CorrelationID] = ref.OrderID
	}
	refusals := make(map[string]upstox.MultiOrderError, len(rejected))
	for _, e := range rejected {
		refusals[e.CorrelationID] = e
	}

	results := make([]OrderResult, len(ordered))
	for i, r := range ordered {
		if id, ok := accepted[r.CorrelationID]; ok {
			results[i] = OrderResult{
				Success:       true,
				BrokerOrderID: id,
				CorrelationID: r.CorrelationID,
				Status:        contracts.StatusAcknowledged,
				Message:       "Order placed",
				Latency:       latency,
			}
			continue
		}
		msg := "no acknowledgement for line"
		if e, ok := refusals[r.CorrelationID]; ok {
			msg = strings.TrimSpace(e.Code + " " + e.Message)
		}
		results[i] = Failed(r.CorrelationID, contracts.ErrCodeBrokerError, msg)
		results[i].Latency = latency
	}
	return NewMultiOrderResult(results, latency)
}

// ModifyOrder sends only the fields present in req.
// Upstox requires price and trigger price on every modify, so absent values are read back first.
func (a *UpstoxAdapter) ModifyOrder(ctx context.Context, req ModifyRequest) OrderResult {
	start := a.clock.Now()

	body := upstox.ModifyOrderRequest{OrderID: req.BrokerOrderID}
	if req.Price == nil || req.TriggerPrice == nil {
		current, err := a.client.GetOrderDetails(ctx, req.BrokerOrderID)
		if err != nil {
			a.logFailure("modify_lookup", req.BrokerOrderID, err)
			return Failed("", errorCode(err, contracts.ErrCodeModifyFailed), err.Error())
		}
		body.Price = current.Price
		body.TriggerPrice = current.TriggerPrice
	}
	if req.Quantity != nil {
		body.Quantity = *req.Quantity
	}
	if req.Price != nil {
		body.Price = req.Price.InexactFloat64()
	}
	if req.TriggerPrice != nil {
		body.TriggerPrice = req.TriggerPrice.InexactFloat64()
	}
	if req.OrderType != nil {
		body.OrderType = req.OrderType.VenueName()
	}
	if req.Validity != nil {
		body.Validity = string(*req.Validity)
	}
	if req.DisclosedQuantity != nil {
		body.DisclosedQuantity = *req.DisclosedQuantity
	}

	id, err := a.client.ModifyOrder(ctx, body)
	latency := a.clock.Now().Sub(start)
	if err != nil {
		a.logFailure("modify", req.BrokerOrderID, err)
		res := Failed("", errorCode(err, contracts.ErrCodeModifyFailed), err.Error())
		res.Latency = latency
		return res
	}
	return OrderResult{Success: true, BrokerOrderID: id, Message: "Order modified", Latency: latency}
}

// CancelOrder cancels one order
func (a *UpstoxAdapter) CancelOrder(ctx context.Context, brokerOrderID string) OrderResult {
	start := a.clock.Now()
	id, err := a.client.CancelOrder(ctx, brokerOrderID)
	latency := a.clock.Now().Sub(start)
	if err != nil {
		a.logFailure("cancel", brokerOrderID, err)
		res := Failed("", errorCode(err, contracts.ErrCodeCancelFailed), err.Error())
		res.Latency = latency
		return res
	}
	return OrderResult{
		Success:       true,
		BrokerOrderID: id,
		Status:        contracts.StatusCancelled,
		Message:       "Order cancelled",
		Latency:       latency,
	}
}

// CancelMultiOrder cancels each order in turn
func (a *UpstoxAdapter) CancelMultiOrder(ctx context.Context, brokerOrderIDs []string) MultiOrderResult {
	start := a.clock.Now()
	results := make([]OrderResult, 0, len(brokerOrderIDs))
	for _, id := range brokerOrderIDs {
		results = append(results, a.CancelOrder(ctx, id))
	}
	return NewMultiOrderResult(results, a.clock.Now().Sub(start))
}

// GetOrderStatus reads the latest state of one order
func (a *UpstoxAdapter) GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatus, error) {
	o, err := a.client.GetOrderDetails(ctx, brokerOrderID)
	if err != nil {
		return nil, err
	}
	status, err := contracts.ParseStatus(o.Status)
	if err != nil {
		return nil, fmt.Errorf("order %s: %w", brokerOrderID, err)
	}
	return &OrderStatus{
		BrokerOrderID:   o.OrderID,
		Status:          status,
		FilledQuantity:  o.FilledQuantity,
		PendingQuantity: o.PendingQuantity,
		AveragePrice:    decimal.NewFromFloat(o.AveragePrice),
		Message:         o.StatusMessage,
	}, nil
}

// GetOrderBook returns the day's orders
func (a *UpstoxAdapter) GetOrderBook(ctx context.Context) ([]BrokerOrder, error) {
	orders, err := a.client.GetOrderBook(ctx)
	if err != nil {
		return nil, err
	}

	book := make([]BrokerOrder, 0, len(orders))
	for _, o := range orders {
		status, err := contracts.ParseStatus(o.Status)
		if err != nil {
			a.logger.WithOrder(o.OrderID).WithError(err).Warn("Skipping order with unknown status")
			continue
		}
		side, _ := contracts.ParseSide(o.TransactionType)
		orderType, _ := contracts.ParseOrderType(o.OrderType)
		book = append(book, BrokerOrder{
			BrokerOrderID:   o.OrderID,
			ExchangeOrderID: o.ExchangeOrderID,
			InstrumentKey:   o.InstrumentToken,
			Side:            side,
			OrderType:       orderType,
			Quantity:        o.Quantity,
			FilledQuantity:  o.FilledQuantity,
			Price:           decimal.NewFromFloat(o.Price),
			AveragePrice:    decimal.NewFromFloat(o.AveragePrice),
			Status:          status,
			StatusMessage:   o.StatusMessage,
			Tag:             o.Tag,
		})
	}
	return book, nil
}

// GetTradesForDay returns today's executions
func (a *UpstoxAdapter) GetTradesForDay(ctx context.Context) ([]BrokerTrade, error) {
	trades, err := a.client.GetTradesForDay(ctx)
	if err != nil {
		return nil, err
	}
	return a.toTrades(trades), nil
}

// GetOrderTrades returns executions of one order
func (a *UpstoxAdapter) GetOrderTrades(ctx context.Context, brokerOrderID string) ([]BrokerTrade, error) {
	trades, err := a.client.GetOrderTrades(ctx, brokerOrderID)
	if err != nil {
		return nil, err
	}
	return a.toTrades(trades), nil
}

// ExitAllPositions asks the venue to square off matching positions
func (a *UpstoxAdapter) ExitAllPositions(ctx context.Context, segment, tag string) MultiOrderResult {
	start := a.clock.Now()
	ids, err := a.client.ExitPositions(ctx, segment, tag)
	latency := a.clock.Now().Sub(start)
	if err != nil {
		a.logFailure("exit_all", tag, err)
		res := Failed("", errorCode(err, contracts.ErrCodeBrokerError), err.Error())
		return NewMultiOrderResult([]OrderResult{res}, latency)
	}

	results := make([]OrderResult, len(ids))
	for i, id := range ids {
		results[i] = OrderResult{Success: true, BrokerOrderID: id, Status: contracts.StatusAcknowledged, Latency: latency}
	}
	return NewMultiOrderResult(results, latency)
}

// IsAvailable probes the profile endpoint
func (a *UpstoxAdapter) IsAvailable(ctx context.Context) bool {
	if _, err := a.client.GetProfile(ctx); err != nil {
		a.logger.WithError(err).Warn("Upstox availability probe failed")
		return false
	}
	return true
}

// RateLimitStatus reports the remaining standard per-minute budget
func (a *UpstoxAdapter) RateLimitStatus(ctx context.Context) RateLimitStatus {
	return rateLimitStatus(ctx, a.limiter, a.capability)
}

func (a *UpstoxAdapter) toTrades(trades []upstox.Trade) []BrokerTrade {
	out := make([]BrokerTrade, 0, len(trades))
	for _, t := range trades {
		side, _ := contracts.ParseSide(t.TransactionType)
		tradedAt, err := time.ParseInLocation("2006-01-02 15:04:05", t.ExchangeTime, istLocation)
		if err != nil {
			tradedAt = a.clock.Now()
		}
		out = append(out, BrokerTrade{
			TradeID:         t.TradeID,
			BrokerOrderID:   t.OrderID,
			ExchangeOrderID: t.ExchangeOrderID,
			InstrumentKey:   t.InstrumentToken,
			Side:            side,
			Quantity:        t.Quantity,
			Price:           decimal.NewFromFloat(t.AveragePrice),
			TradedAt:        tradedAt,
		})
	}
	return out
}

func (a *UpstoxAdapter) logFailure(op, key string, err error) {
	a.logger.WithFields(map[string]interface{}{
		"operation": op,
		"key":       key,
	}).WithError(err).Warn("Upstox call failed")
}

func toUpstoxOrder(r OrderRequest) upstox.PlaceOrderRequest {
	validity := string(r.Validity)
	if validity == "" {
		validity = string(contracts.ValidityDay)
	}
	return upstox.PlaceOrderRequest{
		Quantity:          r.Quantity,
		Product:           string(r.Product),
		Validity:          validity,
		Price:             r.Price.InexactFloat64(),
		Tag:               r.Tag,
		InstrumentToken:   r.InstrumentKey,
		OrderType:         r.OrderType.VenueName(),
		TransactionType:   string(r.Side),
		DisclosedQuantity: r.DisclosedQuantity,
		TriggerPrice:      r.TriggerPrice.InexactFloat64(),
		IsAMO:             r.IsAMO,
	}
}

func failAll(reqs []OrderRequest, code contracts.ErrorCode, msg string, latency time.Duration) MultiOrderResult {
	results := make([]OrderResult, len(reqs))
	for i, r := range reqs {
		results[i] = Failed(r.CorrelationID, code, msg)
		results[i].Latency = latency
	}
	return NewMultiOrderResult(results, latency)
}

// istLocation is the exchange clock for venue timestamps
var istLocation = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}()
