package execution

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

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

const maxCorrelationIDLength = 20

// Batch operation names (metrics label)
const (
	OpPlaceMulti   = "place_multi"
	OpCancelMulti  = "cancel_multi"
	OpCancelFilter = "cancel_filter"
	OpExitAll      = "exit_all"
)

// OrderLine is one line of a batch placement
type OrderLine struct {
	CorrelationID     string          `json:"correlation_id"`
	InstrumentToken   string          `json:"instrument_token"`
	TransactionType   string          `json:"transaction_type"`
	OrderType         string          `json:"order_type"`
	Product           string          `json:"product"`
	Validity          string          `json:"validity"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	TriggerPrice      decimal.Decimal `json:"trigger_price"`
	DisclosedQuantity int             `json:"disclosed_quantity"`
	Tag               string          `json:"tag,omitempty"`
	IsAMO             bool            `json:"is_amo"`
	Slice             bool            `json:"slice"`
	Broker            string          `json:"broker,omitempty"`       // overrides the request broker
	StrategyTag       string          `json:"strategy_tag,omitempty"` // overrides the request strategy
}

// MultiOrderRequest is a batch placement
type MultiOrderRequest struct {
	Orders      []OrderLine `json:"orders"`
	Broker      string      `json:"broker,omitempty"`
	StrategyTag string      `json:"strategy_tag,omitempty"`
}

// MultiOrderService places, cancels and exits orders in batches
// ⭐ SSOT: 배치 주문 처리는 여기서만
type MultiOrderService struct {
	router  *broker.Router
	orders  *persistence.Orchestrator
	gate    *RiskGate
	slicer  *Slicer
	charges *ChargeCalculator
	retrier *Retrier
	config  Config
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logger.Logger

	// correlation id → order id
	correlations sync.Map
}

// NewMultiOrderService creates the batch service
func NewMultiOrderService(
	router *broker.Router,
	orders *persistence.Orchestrator,
	gate *RiskGate,
	cfg Config,
	clk clock.Clock,
	m *metrics.Metrics,
	log *logger.Logger,
) *MultiOrderService {
	if clk == nil {
		clk = clock.Real{}
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	svcLog := log.WithComponent("multi_order")
	if gate == nil {
		gate = NewRiskGate(AllowAll{}, GateModeOff, clk, log)
	}
	return &MultiOrderService{
		router:  router,
		orders:  orders,
		gate:    gate,
		slicer:  NewSlicer(svcLog),
		charges: NewChargeCalculator(DefaultChargeRates()),
		config:  cfg,
		clock:   clk,
		metrics: m,
		logger:  svcLog,
	}
}

// WithRetrier enables re-placement of lines that failed with a transient code
func (s *MultiOrderService) WithRetrier(r *Retrier) *MultiOrderService {
	s.retrier = r
	return s
}

// Config returns the batch rules
func (s *MultiOrderService) Config() Config {
	return s.config
}

// ============================================================
// Place
// ============================================================

// placement is a validated line awaiting routing.
// rank is the line's position in BUY-then-SELL submission order.
type placement struct {
	rank        int
	req         broker.OrderRequest
	slice       bool
	broker      string
	strategyTag string
}

// PlaceMultiOrder validates, routes and places a batch.
// Every BUY line is submitted before any SELL line; line failures never abort siblings.
func (s *MultiOrderService) PlaceMultiOrder(ctx context.Context, req MultiOrderRequest, userID string) *MultiOrderResponse {
	start := s.clock.Now()

	if s.config.MaintenanceWindow.Contains(start) {
		return s.finish(OpPlaceMulti, ErrorResponse(contracts.ErrCodeMaintenanceWindow,
			fmt.Sprintf("Multi-order API unavailable %s IST", s.config.MaintenanceWindow)))
	}
	if len(req.Orders) == 0 {
		return s.finish(OpPlaceMulti, ErrorResponse(contracts.ErrCodeValidation, "At least one order is required"))
	}
	if len(req.Orders) > s.config.MaxBatchSize {
		return s.finish(OpPlaceMulti, ErrorResponse(contracts.ErrCodeBatchSizeExceeded,
			fmt.Sprintf("Maximum %d orders per batch, got %d", s.config.MaxBatchSize, len(req.Orders))))
	}

	b := newResponseBuilder()
	seen := make(map[string]bool, len(req.Orders))
	buys := make([]placement, 0, len(req.Orders))
	sells := make([]placement, 0, len(req.Orders))

	for rank, line := range buyFirst(req.Orders) {
		orderReq, cerr := validateLine(line, userID)
		if cerr == nil && seen[line.CorrelationID] {
			cerr = contracts.NewError(contracts.ErrCodeValidation, "duplicate correlation_id %q", line.CorrelationID)
		}
		if cerr != nil {
			b.addPayloadErrorAt(rank, line.CorrelationID, cerr.Code, cerr.Message)
			continue
		}
		seen[line.CorrelationID] = true

		p := placement{
			rank:        rank,
			req:         orderReq,
			slice:       line.Slice,
			broker:      firstNonEmpty(line.Broker, req.Broker),
			strategyTag: firstNonEmpty(line.StrategyTag, req.StrategyTag),
		}
		if orderReq.Side == contracts.OrderSideBuy {
			buys = append(buys, p)
		} else {
			sells = append(sells, p)
		}
	}

	s.placePhase(ctx, userID, buys, b)
	s.placePhase(ctx, userID, sells, b)

	b.latestMs = s.clock.Now().Sub(start).Milliseconds()
	resp := b.build()

	s.logger.WithFields(map[string]interface{}{
		"user_id": userID,
		"status":  resp.Status,
		"total":   resp.Summary.Total,
		"success": resp.Summary.Success,
		"errors":  resp.Summary.Error,
	}).Info("Multi order processed")

	return s.finish(OpPlaceMulti, resp)
}

// routedGroup is the part of a phase bound to one adapter
type routedGroup struct {
	adapter    broker.Adapter
	placements []placement
}

// placePhase routes and places lines of one side; it returns once every venue call finished
func (s *MultiOrderService) placePhase(ctx context.Context, userID string, phase []placement, b *responseBuilder) {
	if len(phase) == 0 {
		return
	}

	groups := make([]*routedGroup, 0, 1)
	byBroker := make(map[string]*routedGroup)

	for _, p := range phase {
		draft := draftOrder(p.req, userID, p.strategyTag)
		if gate := s.gate.Check(ctx, userID, draft); !gate.Passed {
			b.addErrorAt(p.rank, p.req.CorrelationID, contracts.ErrCodeRiskRejected, gate.Reason)
			s.metrics.OrdersTotal.WithLabelValues("", "risk_rejected").Inc()
			continue
		}

		adapter, err := s.router.Resolve(ctx, userID, p.broker, p.strategyTag)
		if err != nil {
			b.addErrorAt(p.rank, p.req.CorrelationID, contracts.ErrCodeRoutingError, err.Error())
			continue
		}
		if !adapter.Capabilities().SupportsOrderType(p.req.OrderType) {
			b.addErrorAt(p.rank, p.req.CorrelationID, contracts.ErrCodeRoutingError,
				fmt.Sprintf("%s does not support order type %s", adapter.Name(), p.req.OrderType.VenueName()))
			continue
		}

		g, ok := byBroker[adapter.Name()]
		if !ok {
			g = &routedGroup{adapter: adapter}
			byBroker[adapter.Name()] = g
			groups = append(groups, g)
		}
		g.placements = append(g.placements, p)
	}

	for _, g := range groups {
		s.placeGroup(ctx, userID, g, b)
	}
}

// placeGroup slices, batches and submits one adapter's lines, then persists acknowledgements
func (s *MultiOrderService) placeGroup(ctx context.Context, userID string, g *routedGroup, b *responseBuilder) {
	capability := g.adapter.Capabilities()

	reqs := make([]broker.OrderRequest, 0, len(g.placements))
	owners := make(map[string]placement, len(g.placements))
	sliceGroups := make([]SliceGroup, 0)

	for _, p := range g.placements {
		if p.slice && s.config.AutoSlicing && capability.SupportsSlicing && s.slicer.NeedsSlicing(p.req) {
			children := s.slicer.Slice(p.req)
			ids := make([]string, 0, len(children))
			for _, child := range children {
				reqs = append(reqs, child)
				owners[child.CorrelationID] = p
				ids = append(ids, child.CorrelationID)
			}
			sliceGroups = append(sliceGroups, SliceGroup{Original: p.req.CorrelationID, Slices: ids})
			continue
		}
		reqs = append(reqs, p.req)
		owners[p.req.CorrelationID] = p
	}

	allResults := make([]broker.OrderResult, 0, len(reqs))
	for i, batch := range broker.SplitBatches(reqs, capability) {
		batchStart := s.clock.Now()
		results := s.submit(ctx, g.adapter, batch, fmt.Sprintf("%s-%d", uuid.NewString()[:8], i))
		s.metrics.ObserveBroker(g.adapter.Name(), "place", s.clock.Now().Sub(batchStart))

		for _, req := range batch {
			res, ok := results[req.CorrelationID]
			if !ok {
				res = broker.Failed(req.CorrelationID, contracts.ErrCodeBrokerError, "no result from venue")
			}
			res.CorrelationID = req.CorrelationID
			allResults = append(allResults, res)
			rank := owners[req.CorrelationID].rank

			if !res.Success {
				code := res.ErrorCode
				if code == "" {
					code = contracts.ErrCodeBrokerError
				}
				b.addErrorAt(rank, req.CorrelationID, code, res.Message)
				s.metrics.OrdersTotal.WithLabelValues(g.adapter.Name(), "failed").Inc()
				continue
			}

			orderID, err := s.acknowledge(ctx, userID, g.adapter.Name(), owners[req.CorrelationID], req, res, batchStart)
			if err != nil {
				s.logger.WithFields(map[string]interface{}{
					"correlation_id":  req.CorrelationID,
					"broker_order_id": res.BrokerOrderID,
					"error":           err.Error(),
				}).Error("Acknowledged order not persisted")
				b.addErrorAt(rank, req.CorrelationID, contracts.ErrCodeInternal,
					fmt.Sprintf("venue order %s acknowledged but not persisted", res.BrokerOrderID))
				continue
			}
			b.addSuccessAt(rank, req.CorrelationID, orderID)
			s.metrics.OrdersTotal.WithLabelValues(g.adapter.Name(), "acknowledged").Inc()
		}
	}

	if len(sliceGroups) > 0 {
		b.slices = append(b.slices, AggregateSliceResults(sliceGroups, allResults)...)
	}
}

// submit sends one batch and returns results by correlation id.
// Transient failures are re-placed when a retrier is configured.
func (s *MultiOrderService) submit(ctx context.Context, adapter broker.Adapter, batch []broker.OrderRequest, batchID string) map[string]broker.OrderResult {
	var res broker.MultiOrderResult
	if len(batch) == 1 {
		r := adapter.PlaceOrder(ctx, batch[0])
		if r.CorrelationID == "" {
			r.CorrelationID = batch[0].CorrelationID
		}
		res = broker.NewMultiOrderResult([]broker.OrderResult{r}, r.Latency)
	} else {
		res = adapter.PlaceMultiOrder(ctx, batch)
	}

	byCorrelation := make(map[string]broker.OrderResult, len(res.Results))
	for _, r := range res.Results {
		byCorrelation[r.CorrelationID] = r
	}

	if s.retrier == nil {
		return byCorrelation
	}
	retryable := s.retrier.Policy().Retryable
	failed := make([]broker.OrderRequest, 0)
	for _, req := range batch {
		if r, ok := byCorrelation[req.CorrelationID]; ok && !r.Success && retryable[r.ErrorCode] {
			failed = append(failed, req)
		}
	}
	if len(failed) == 0 {
		return byCorrelation
	}
	retried := s.retrier.RetryFailedOrders(ctx, adapter, failed, batchID)
	for _, r := range retried.Results {
		byCorrelation[r.CorrelationID] = r
	}
	return byCorrelation
}

// acknowledge persists a venue-acknowledged order with charges and latency
func (s *MultiOrderService) acknowledge(ctx context.Context, userID, brokerName string, p placement, req broker.OrderRequest, res broker.OrderResult, batchStart time.Time) (string, error) {
	now := s.clock.Now()
	order := draftOrder(req, userID, p.strategyTag)
	order.OrderID = uuid.NewString()
	order.BrokerOrderID = res.BrokerOrderID
	order.Broker = brokerName
	order.Status = contracts.StatusAcknowledged
	order.PlacedAt = batchStart
	if req.CorrelationID != p.req.CorrelationID {
		order.ParentOrderID = p.req.CorrelationID
	}

	charges := s.charges.Calculate(order, req.Price, now)
	latency := contracts.CaptureLatency(order.OrderID, now.Sub(batchStart), now)

	if _, err := s.orders.Persist(ctx, order, charges, latency); err != nil {
		return "", err
	}
	s.correlations.Store(req.CorrelationID, order.OrderID)

	// Working states reported at placement are applied now; fills arrive through reconciliation
	if res.Status == contracts.StatusOpen || res.Status == contracts.StatusPartiallyFilled {
		if _, err := s.orders.UpdateStatus(ctx, order.OrderID, res.Status); err != nil {
			s.logger.WithFields(map[string]interface{}{
				"order_id": order.OrderID,
				"status":   res.Status,
				"error":    err.Error(),
			}).Warn("Failed to apply venue status")
		}
	}
	return order.OrderID, nil
}

// GetOrderIDByCorrelation resolves a correlation id placed through this service
func (s *MultiOrderService) GetOrderIDByCorrelation(correlationID string) (string, bool) {
	v, ok := s.correlations.Load(correlationID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// ============================================================
// Cancel
// ============================================================

type cancelTarget struct {
	order contracts.Order
}

// CancelMultiOrder cancels up to MaxCancelBatch orders of the user.
// An empty userID skips the ownership check.
func (s *MultiOrderService) CancelMultiOrder(ctx context.Context, orderIDs []string, userID string) *MultiOrderResponse {
	if len(orderIDs) > s.config.MaxCancelBatch {
		return s.finish(OpCancelMulti, ErrorResponse(contracts.ErrCodeBatchSizeExceeded,
			fmt.Sprintf("Maximum %d orders per cancel batch, got %d", s.config.MaxCancelBatch, len(orderIDs))))
	}
	if len(orderIDs) == 0 {
		return s.finish(OpCancelMulti, ErrorResponse(contracts.ErrCodeValidation, "At least one order id is required"))
	}
	return s.finish(OpCancelMulti, s.cancel(ctx, orderIDs, userID))
}

func (s *MultiOrderService) cancel(ctx context.Context, orderIDs []string, userID string) *MultiOrderResponse {
	b := newResponseBuilder()

	type cancelGroup struct {
		adapter broker.Adapter
		targets []cancelTarget
	}
	groups := make([]*cancelGroup, 0, 1)
	byBroker := make(map[string]*cancelGroup)

	for _, id := range orderIDs {
		order, err := s.orders.GetOrder(ctx, id)
		if errors.Is(err, persistence.ErrOrderNotFound) || (err == nil && userID != "" && order.UserID != userID) {
			b.addError(id, contracts.ErrCodeOrderNotFound, "Order not found: "+id)
			continue
		}
		if err != nil {
			b.addError(id, contracts.ErrCodeInternal, err.Error())
			continue
		}
		if order.IsComplete() {
			b.addError(id, contracts.ErrCodeOrderAlreadyComplete, "Order already "+string(order.Status))
			continue
		}
		adapter, ok := s.router.Get(order.Broker)
		if !ok {
			b.addError(id, contracts.ErrCodeRoutingError, fmt.Sprintf("%v: %s", broker.ErrUnsupportedBroker, order.Broker))
			continue
		}

		g, ok := byBroker[adapter.Name()]
		if !ok {
			g = &cancelGroup{adapter: adapter}
			byBroker[adapter.Name()] = g
			groups = append(groups, g)
		}
		g.targets = append(g.targets, cancelTarget{order: order})
	}

	for _, g := range groups {
		start := s.clock.Now()
		results := s.cancelAtVenue(ctx, g.adapter, g.targets)
		s.metrics.ObserveBroker(g.adapter.Name(), "cancel", s.clock.Now().Sub(start))

		for i, t := range g.targets {
			id := t.order.OrderID
			if i >= len(results) || !results[i].Success {
				msg := "no result from venue"
				if i < len(results) {
					msg = results[i].Message
				}
				b.addError(id, contracts.ErrCodeCancelFailed, msg)
				continue
			}
			if _, err := s.orders.UpdateStatus(ctx, id, contracts.StatusCancelled); err != nil {
				if errors.Is(err, persistence.ErrInvalidTransition) {
					b.addError(id, contracts.ErrCodeOrderAlreadyComplete, err.Error())
				} else {
					b.addError(id, contracts.ErrCodeInternal, err.Error())
				}
				continue
			}
			b.addSuccess(id, id)
		}
	}

	return b.build()
}

// cancelAtVenue returns one result per target, in target order
func (s *MultiOrderService) cancelAtVenue(ctx context.Context, adapter broker.Adapter, targets []cancelTarget) []broker.OrderResult {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.order.BrokerOrderID)
	}

	if adapter.Capabilities().SupportsCancelMulti && len(ids) > 1 {
		return adapter.CancelMultiOrder(ctx, ids).Results
	}

	results := make([]broker.OrderResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, adapter.CancelOrder(ctx, id))
	}
	return results
}

// CancelByFilter cancels the user's working orders whose exchange contains
// segment and whose tag equals tag; empty filters match everything.
func (s *MultiOrderService) CancelByFilter(ctx context.Context, segment, tag, userID string) *MultiOrderResponse {
	s.logger.WithFields(map[string]interface{}{
		"segment": segment,
		"tag":     tag,
		"user_id": userID,
	}).Info("Cancel by filter")

	open, err := s.orders.GetOpenOrders(ctx, userID)
	if err != nil {
		return s.finish(OpCancelFilter, ErrorResponse(contracts.ErrCodeInternal, err.Error()))
	}

	ids := make([]string, 0, len(open))
	for _, o := range open {
		if matchesOrder(o, segment, tag) {
			ids = append(ids, o.OrderID)
		}
	}
	if len(ids) == 0 {
		return s.finish(OpCancelFilter, newResponseBuilder().build())
	}

	b := newResponseBuilder()
	for start := 0; start < len(ids); start += s.config.MaxCancelBatch {
		end := min(start+s.config.MaxCancelBatch, len(ids))
		b.merge(s.cancel(ctx, ids[start:end], userID))
	}
	return s.finish(OpCancelFilter, b.build())
}

// ============================================================
// Exit all
// ============================================================

// ExitAllPositions squares off the user's working orders, BUY positions first.
// Each exit is reported as EXIT-<orderId>; a position is marked FILLED only when
// its own exit order was acknowledged.
func (s *MultiOrderService) ExitAllPositions(ctx context.Context, segment, tag, userID string) *MultiOrderResponse {
	s.logger.WithFields(map[string]interface{}{
		"segment": segment,
		"tag":     tag,
		"user_id": userID,
	}).Info("Exit all positions")

	orders, err := s.orders.GetOrdersByUser(ctx, userID)
	if err != nil {
		return s.finish(OpExitAll, ErrorResponse(contracts.ErrCodeInternal, err.Error()))
	}

	positions := make([]contracts.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.IsWorking() && matchesOrder(o, segment, tag) {
			positions = append(positions, o)
		}
	}
	if len(positions) == 0 {
		return s.finish(OpExitAll, ErrorResponse(contracts.ErrCodeNoOpenPositions, "No open positions found"))
	}

	// Placement order within each side
	sort.SliceStable(positions, func(i, j int) bool { return positions[i].PlacedAt.Before(positions[j].PlacedAt) })
	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].Side == contracts.OrderSideBuy && positions[j].Side != contracts.OrderSideBuy
	})

	// Venue-wide exit endpoints square off the whole venue account, so every
	// position is closed by its own opposite order
	b := newResponseBuilder()
	for _, pos := range positions {
		adapter, ok := s.router.Get(pos.Broker)
		if !ok {
			b.addError(pos.OrderID, contracts.ErrCodeRoutingError, fmt.Sprintf("%v: %s", broker.ErrUnsupportedBroker, pos.Broker))
			continue
		}

		res := adapter.PlaceOrder(ctx, exitRequest(pos))
		if !res.Success {
			b.addError(pos.OrderID, contracts.ErrCodeBrokerError, res.Message)
			continue
		}

		s.markExited(ctx, pos, b)
	}

	return s.finish(OpExitAll, b.build())
}

func (s *MultiOrderService) markExited(ctx context.Context, pos contracts.Order, b *responseBuilder) {
	if _, err := s.orders.UpdateStatus(ctx, pos.OrderID, contracts.StatusFilled); err != nil {
		code := contracts.ErrCodeInternal
		if errors.Is(err, persistence.ErrInvalidTransition) {
			code = contracts.ErrCodeOrderAlreadyComplete
		}
		b.addError(pos.OrderID, code, err.Error())
		return
	}
	b.addSuccess(pos.OrderID, "EXIT-"+pos.OrderID)
}

// exitRequest is the opposite MARKET order closing a position
func exitRequest(pos contracts.Order) broker.OrderRequest {
	side := contracts.OrderSideSell
	if pos.Side == contracts.OrderSideSell {
		side = contracts.OrderSideBuy
	}
	return broker.OrderRequest{
		CorrelationID: "EXIT-" + pos.OrderID,
		UserID:        pos.UserID,
		InstrumentKey: pos.InstrumentKey,
		Side:          side,
		OrderType:     contracts.OrderTypeMarket,
		Product:       pos.Product,
		Validity:      contracts.ValidityDay,
		Quantity:      pos.Quantity,
		Tag:           pos.Tag,
	}
}

// ============================================================
// Helpers
// ============================================================

// buyFirst returns the BUY lines followed by every other line, each in submission order.
// Lines are split on the raw transaction type so invalid lines keep their side.
func buyFirst(lines []OrderLine) []OrderLine {
	out := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		if isBuy(l.TransactionType) {
			out = append(out, l)
		}
	}
	for _, l := range lines {
		if !isBuy(l.TransactionType) {
			out = append(out, l)
		}
	}
	return out
}

func isBuy(transactionType string) bool {
	return strings.EqualFold(strings.TrimSpace(transactionType), string(contracts.OrderSideBuy))
}

// finish records the batch outcome
func (s *MultiOrderService) finish(operation string, resp *MultiOrderResponse) *MultiOrderResponse {
	s.metrics.BatchTotal.WithLabelValues(operation, resp.Status).Inc()
	if le, ok := resp.FirstError(); ok && resp.IsError() && resp.Summary.Total == 0 {
		s.logger.WithFields(map[string]interface{}{
			"operation":  operation,
			"error_code": le.ErrorCode,
			"message":    le.Message,
		}).Warn("Batch rejected")
	}
	return resp
}

// validateLine checks one line and converts it to a venue request
func validateLine(line OrderLine, userID string) (broker.OrderRequest, *contracts.CodedError) {
	if line.CorrelationID == "" {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "correlation_id is required")
	}
	if len(line.CorrelationID) > maxCorrelationIDLength {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation,
			"correlation_id must be at most %d characters", maxCorrelationIDLength)
	}
	if !strings.Contains(line.InstrumentToken, "|") {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation,
			"instrument_token must look like SEGMENT|TOKEN, got %q", line.InstrumentToken)
	}
	if line.Quantity <= 0 {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "quantity must be positive")
	}

	side, err := contracts.ParseSide(line.TransactionType)
	if err != nil {
		return broker.OrderRequest{}, contracts.WrapError(contracts.ErrCodeValidation, err)
	}
	orderType, err := contracts.ParseOrderType(line.OrderType)
	if err != nil {
		return broker.OrderRequest{}, contracts.WrapError(contracts.ErrCodeValidation, err)
	}
	product, err := contracts.ParseProduct(line.Product)
	if err != nil {
		return broker.OrderRequest{}, contracts.WrapError(contracts.ErrCodeValidation, err)
	}
	validity, err := contracts.ParseValidity(line.Validity)
	if err != nil {
		return broker.OrderRequest{}, contracts.WrapError(contracts.ErrCodeValidation, err)
	}

	if line.Price.IsNegative() || line.TriggerPrice.IsNegative() {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "prices must not be negative")
	}
	if orderType.RequiresPrice() && !line.Price.IsPositive() {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "price is required for %s orders", orderType.VenueName())
	}
	if orderType.RequiresTrigger() && !line.TriggerPrice.IsPositive() {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "trigger_price is required for %s orders", orderType.VenueName())
	}
	if line.DisclosedQuantity < 0 || line.DisclosedQuantity > line.Quantity {
		return broker.OrderRequest{}, contracts.NewError(contracts.ErrCodeValidation, "disclosed_quantity must be between 0 and quantity")
	}

	return broker.OrderRequest{
		CorrelationID:     line.CorrelationID,
		UserID:            userID,
		InstrumentKey:     line.InstrumentToken,
		Side:              side,
		OrderType:         orderType,
		Product:           product,
		Validity:          validity,
		Quantity:          line.Quantity,
		Price:             line.Price,
		TriggerPrice:      line.TriggerPrice,
		DisclosedQuantity: line.DisclosedQuantity,
		Tag:               line.Tag,
		IsAMO:             line.IsAMO,
	}, nil
}

// draftOrder is the order a request would become once acknowledged
func draftOrder(req broker.OrderRequest, userID, strategyTag string) contracts.Order {
	return contracts.Order{
		CorrelationID:     req.CorrelationID,
		UserID:            userID,
		Tag:               req.Tag,
		StrategyTag:       strategyTag,
		Exchange:          contracts.SegmentOf(req.InstrumentKey),
		InstrumentKey:     req.InstrumentKey,
		Side:              req.Side,
		OrderType:         req.OrderType,
		Product:           req.Product,
		Quantity:          req.Quantity,
		Price:             req.Price,
		TriggerPrice:      req.TriggerPrice,
		DisclosedQuantity: req.DisclosedQuantity,
		Validity:          req.Validity,
		Status:            contracts.StatusPending,
	}
}

// matchesOrder applies the segment (containment) and tag (equality) filters
func matchesOrder(o contracts.Order, segment, tag string) bool {
	if segment != "" && !strings.Contains(o.Segment(), strings.ToUpper(segment)) {
		return false
	}
	if tag != "" && o.Tag != tag {
		return false
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
