package execution

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Single-order outcome
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// ModifyRequest changes an open order; nil fields keep the current value
type ModifyRequest struct {
	OrderID           string           `json:"order_id"`
	Quantity          *int             `json:"quantity,omitempty"`
	Price             *decimal.Decimal `json:"price,omitempty"`
	TriggerPrice      *decimal.Decimal `json:"trigger_price,omitempty"`
	OrderType         *string          `json:"order_type,omitempty"`
	Validity          *string          `json:"validity,omitempty"`
	DisclosedQuantity *int             `json:"disclosed_quantity,omitempty"`
}

// ModifyResult is the outcome of ModifyOrder
type ModifyResult struct {
	Status        string              `json:"status"`
	OrderID       string              `json:"order_id"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	UpdatedFields []string            `json:"updated_fields"`
	LatencyMs     int64               `json:"latency_ms"`
	ErrorCode     contracts.ErrorCode `json:"error_code,omitempty"`
	Message       string              `json:"message,omitempty"`
}

// CancelResult is the outcome of CancelOrder
type CancelResult struct {
	Status    string              `json:"status"`
	OrderID   string              `json:"order_id"`
	LatencyMs int64               `json:"latency_ms"`
	ErrorCode contracts.ErrorCode `json:"error_code,omitempty"`
	Message   string              `json:"message,omitempty"`
}

// OrderModifyService modifies and cancels single orders
// ⭐ SSOT: 단건 정정/취소는 여기서만
type OrderModifyService struct {
	router  *broker.Router
	orders  *persistence.Orchestrator
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logger.Logger
}

// NewOrderModifyService creates the modify service
func NewOrderModifyService(router *broker.Router, orders *persistence.Orchestrator, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *OrderModifyService {
	if clk == nil {
		clk = clock.Real{}
	}
	if m == nil {
		m = metrics.NewIsolated()
	}
	return &OrderModifyService{
		router:  router,
		orders:  orders,
		clock:   clk,
		metrics: m,
		logger:  log.WithComponent("order_modify"),
	}
}

// ModifyOrder applies the present fields at the venue, then persists the replacement.
// A venue refusal leaves the stored order untouched.
func (s *OrderModifyService) ModifyOrder(ctx context.Context, req ModifyRequest) ModifyResult {
	start := s.clock.Now()
	fail := func(code contracts.ErrorCode, msg string) ModifyResult {
		s.logger.WithFields(map[string]interface{}{
			"order_id":   req.OrderID,
			"error_code": code,
			"message":    msg,
		}).Warn("Modify rejected")
		return ModifyResult{
			Status:        ResultError,
			OrderID:       req.OrderID,
			UpdatedFields: []string{},
			LatencyMs:     s.clock.Now().Sub(start).Milliseconds(),
			ErrorCode:     code,
			Message:       msg,
		}
	}

	current, err := s.orders.GetOrder(ctx, req.OrderID)
	if errors.Is(err, persistence.ErrOrderNotFound) {
		return fail(contracts.ErrCodeOrderNotFound, "Order not found: "+req.OrderID)
	}
	if err != nil {
		return fail(contracts.ErrCodeInternal, err.Error())
	}
	if !current.IsModifiable() {
		return fail(contracts.ErrCodeModifyNotAllowed, "Cannot modify order in status "+string(current.Status))
	}

	next, venueReq, cerr := applyModification(current, req)
	if cerr != nil {
		return fail(cerr.Code, cerr.Message)
	}
	changed := changedFields(current, next)
	if len(changed) == 0 {
		return ModifyResult{
			Status:        ResultSuccess,
			OrderID:       current.OrderID,
			CorrelationID: current.CorrelationID,
			UpdatedFields: []string{},
			LatencyMs:     s.clock.Now().Sub(start).Milliseconds(),
			Message:       "Nothing to modify",
		}
	}

	adapter, ok := s.router.Get(current.Broker)
	if !ok {
		return fail(contracts.ErrCodeRoutingError, fmt.Sprintf("%v: %s", broker.ErrUnsupportedBroker, current.Broker))
	}
	if !adapter.Capabilities().SupportsModify {
		return fail(contracts.ErrCodeModifyFailed, adapter.Name()+" does not support modify")
	}

	venueStart := s.clock.Now()
	res := adapter.ModifyOrder(ctx, venueReq)
	s.metrics.ObserveBroker(adapter.Name(), "modify", s.clock.Now().Sub(venueStart))
	if !res.Success {
		return fail(contracts.ErrCodeModifyFailed, venueMessage(res))
	}

	_, err = s.orders.Update(ctx, current.OrderID, func(stored contracts.Order) (contracts.Order, error) {
		if !stored.IsModifiable() {
			return stored, persistence.ErrInvalidTransition
		}
		replaced := stored
		replaced.Quantity = next.Quantity
		replaced.Price = next.Price
		replaced.TriggerPrice = next.TriggerPrice
		replaced.OrderType = next.OrderType
		replaced.Validity = next.Validity
		replaced.DisclosedQuantity = next.DisclosedQuantity
		return replaced, nil
	})
	if errors.Is(err, persistence.ErrInvalidTransition) {
		return fail(contracts.ErrCodeModifyNotAllowed, "Order completed while modifying")
	}
	if err != nil {
		return fail(contracts.ErrCodeInternal, err.Error())
	}

	latency := s.clock.Now().Sub(start)
	s.logger.WithFields(map[string]interface{}{
		"order_id":   current.OrderID,
		"fields":     changed,
		"latency_ms": latency.Milliseconds(),
	}).Info("Order modified")

	return ModifyResult{
		Status:        ResultSuccess,
		OrderID:       current.OrderID,
		CorrelationID: current.CorrelationID,
		UpdatedFields: changed,
		LatencyMs:     latency.Milliseconds(),
		Message:       "Order modified",
	}
}

// CancelOrder cancels one working order at its venue and marks it CANCELLED
func (s *OrderModifyService) CancelOrder(ctx context.Context, orderID string) CancelResult {
	start := s.clock.Now()
	fail := func(code contracts.ErrorCode, msg string) CancelResult {
		s.logger.WithFields(map[string]interface{}{
			"order_id":   orderID,
			"error_code": code,
			"message":    msg,
		}).Warn("Cancel rejected")
		return CancelResult{
			Status:    ResultError,
			OrderID:   orderID,
			LatencyMs: s.clock.Now().Sub(start).Milliseconds(),
			ErrorCode: code,
			Message:   msg,
		}
	}

	current, err := s.orders.GetOrder(ctx, orderID)
	if errors.Is(err, persistence.ErrOrderNotFound) {
		return fail(contracts.ErrCodeOrderNotFound, "Order not found: "+orderID)
	}
	if err != nil {
		return fail(contracts.ErrCodeInternal, err.Error())
	}
	if current.IsComplete() {
		return fail(contracts.ErrCodeCancelNotAllowed, "Cannot cancel order in status "+string(current.Status))
	}

	adapter, ok := s.router.Get(current.Broker)
	if !ok {
		return fail(contracts.ErrCodeRoutingError, fmt.Sprintf("%v: %s", broker.ErrUnsupportedBroker, current.Broker))
	}

	venueStart := s.clock.Now()
	res := adapter.CancelOrder(ctx, current.BrokerOrderID)
	s.metrics.ObserveBroker(adapter.Name(), "cancel", s.clock.Now().Sub(venueStart))
	if !res.Success {
		return fail(contracts.ErrCodeCancelFailed, venueMessage(res))
	}

	if _, err := s.orders.UpdateStatus(ctx, orderID, contracts.StatusCancelled); err != nil {
		if errors.Is(err, persistence.ErrInvalidTransition) {
			return fail(contracts.ErrCodeCancelNotAllowed, err.Error())
		}
		return fail(contracts.ErrCodeInternal, err.Error())
	}

	latency := s.clock.Now().Sub(start)
	s.logger.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"latency_ms": latency.Milliseconds(),
	}).Info("Order cancelled")

	return CancelResult{
		Status:    ResultSuccess,
		OrderID:   orderID,
		LatencyMs: latency.Milliseconds(),
		Message:   "Order cancelled",
	}
}

// applyModification returns the order with the request applied and the venue request
// carrying only the fields that were present
func applyModification(current contracts.Order, req ModifyRequest) (contracts.Order, broker.ModifyRequest, *contracts.CodedError) {
	next := current
	venue := broker.ModifyRequest{BrokerOrderID: current.BrokerOrderID}

	if req.Quantity != nil {
		q := *req.Quantity
		if q <= 0 || q < current.FilledQuantity {
			return current, venue, contracts.NewError(contracts.ErrCodeValidation,
				"quantity must be positive and at least the filled quantity %d", current.FilledQuantity)
		}
		next.Quantity = q
		venue.Quantity = &q
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return current, venue, contracts.NewError(contracts.ErrCodeValidation, "price must not be negative")
		}
		p := *req.Price
		next.Price = p
		venue.Price = &p
	}
	if req.TriggerPrice != nil {
		if req.TriggerPrice.IsNegative() {
			return current, venue, contracts.NewError(contracts.ErrCodeValidation, "trigger_price must not be negative")
		}
		t := *req.TriggerPrice
		next.TriggerPrice = t
		venue.TriggerPrice = &t
	}
	if req.OrderType != nil {
		t, err := contracts.ParseOrderType(*req.OrderType)
		if err != nil {
			return current, venue, contracts.WrapError(contracts.ErrCodeValidation, err)
		}
		next.OrderType = t
		venue.OrderType = &t
	}
	if req.Validity != nil {
		v, err := contracts.ParseValidity(*req.Validity)
		if err != nil {
			return current, venue, contracts.WrapError(contracts.ErrCodeValidation, err)
		}
		next.Validity = v
		venue.Validity = &v
	}
	if req.DisclosedQuantity != nil {
		d := *req.DisclosedQuantity
		next.DisclosedQuantity = d
		venue.DisclosedQuantity = &d
	}

	if next.DisclosedQuantity < 0 || next.DisclosedQuantity > next.Quantity {
		return current, venue, contracts.NewError(contracts.ErrCodeValidation, "disclosed_quantity must be between 0 and quantity")
	}
	if next.OrderType.RequiresPrice() && !next.Price.IsPositive() {
		return current, venue, contracts.NewError(contracts.ErrCodeValidation, "price is required for %s orders", next.OrderType.VenueName())
	}
	if next.OrderType.RequiresTrigger() && !next.TriggerPrice.IsPositive() {
		return current, venue, contracts.NewError(contracts.ErrCodeValidation, "trigger_price is required for %s orders", next.OrderType.VenueName())
	}
	return next, venue, nil
}

// changedFields names the terms that differ, in a fixed order
func changedFields(before, after contracts.Order) []string {
	fields := make([]string, 0, 6)
	if before.Quantity != after.Quantity {
		fields = append(fields, "quantity")
	}
	if !before.Price.Equal(after.Price) {
		fields = append(fields, "price")
	}
	if !before.TriggerPrice.Equal(after.TriggerPrice) {
		fields = append(fields, "trigger_price")
	}
	if before.OrderType != after.OrderType {
		fields = append(fields, "order_type")
	}
	if before.Validity != after.Validity {
		fields = append(fields, "validity")
	}
	if before.DisclosedQuantity != after.DisclosedQuantity {
		fields = append(fields, "disclosed_quantity")
	}
	return fields
}

func venueMessage(res broker.OrderResult) string {
	if res.ErrorCode != "" && res.Message != "" {
		return fmt.Sprintf("%s: %s", res.ErrorCode, res.Message)
	}
	if res.Message != "" {
		return res.Message
	}
	return "venue refused the request"
}
