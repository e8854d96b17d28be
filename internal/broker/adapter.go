package broker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// Adapter is a capability-annotated venue binding
// ⭐ SSOT: 브로커 연동 인터페이스는 여기서만 정의
//
// Venue failures are reported inside results (BROKER_ERROR, MODIFY_FAILED,
// CANCEL_FAILED, RATE_LIMITED, NETWORK_ERROR, TIMEOUT), never as Go errors;
// the query methods return an error when nothing could be read.
type Adapter interface {
	Name() string
	Capabilities() Capability

	PlaceOrder(ctx context.Context, req OrderRequest) OrderResult
	PlaceMultiOrder(ctx context.Context, reqs []OrderRequest) MultiOrderResult
	ModifyOrder(ctx context.Context, req ModifyRequest) OrderResult
	CancelOrder(ctx context.Context, brokerOrderID string) OrderResult
	CancelMultiOrder(ctx context.Context, brokerOrderIDs []string) MultiOrderResult

	GetOrderStatus(ctx context.Context, brokerOrderID string) (*OrderStatus, error)
	GetOrderBook(ctx context.Context) ([]BrokerOrder, error)
	GetTradesForDay(ctx context.Context) ([]BrokerTrade, error)
	GetOrderTrades(ctx context.Context, brokerOrderID string) ([]BrokerTrade, error)

	ExitAllPositions(ctx context.Context, segment, tag string) MultiOrderResult
	IsAvailable(ctx context.Context) bool
	RateLimitStatus(ctx context.Context) RateLimitStatus
}

// OrderRequest is one order as sent to a venue
type OrderRequest struct {
	CorrelationID     string
	UserID            string
	InstrumentKey     string
	Side              contracts.OrderSide
	OrderType         contracts.OrderType
	Product           contracts.Product
	Validity          contracts.Validity
	Quantity          int
	Price             decimal.Decimal
	TriggerPrice      decimal.Decimal
	DisclosedQuantity int
	Tag               string
	IsAMO             bool
}

// OrderResult is the venue's answer to one order operation
type OrderResult struct {
	Success       bool                `json:"success"`
	BrokerOrderID string              `json:"broker_order_id,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Status        contracts.Status    `json:"status,omitempty"`
	ErrorCode     contracts.ErrorCode `json:"error_code,omitempty"`
	Message       string              `json:"message,omitempty"`
	Latency       time.Duration       `json:"latency"`
}

// Failed builds a failed result
func Failed(correlationID string, code contracts.ErrorCode, message string) OrderResult {
	return OrderResult{CorrelationID: correlationID, ErrorCode: code, Message: message}
}

// MultiOrderResult aggregates per-order results
type MultiOrderResult struct {
	Status  string        `json:"status"` // success, partial_success, error
	Results []OrderResult `json:"results"`
	Total   int           `json:"total"`
	Success int           `json:"success"`
	Errors  int           `json:"errors"`
	Latency time.Duration `json:"latency"`
}

// Aggregate status values
const (
	AggregateSuccess = "success"
	AggregatePartial = "partial_success"
	AggregateError   = "error"
)

// AggregateStatus maps success / error counts to an aggregate status
func AggregateStatus(success, errors int) string {
	switch {
	case errors == 0:
		return AggregateSuccess
	case success == 0:
		return AggregateError
	default:
		return AggregatePartial
	}
}

// NewMultiOrderResult counts results and derives the aggregate status
func NewMultiOrderResult(results []OrderResult, latency time.Duration) MultiOrderResult {
	success := 0
	for _, r := range results {
		if r.Success {
			success++
		}
	}
	errCount := len(results) - success
	return MultiOrderResult{
		Status:  AggregateStatus(success, errCount),
		Results: results,
		Total:   len(results),
		Success: success,
		Errors:  errCount,
		Latency: latency,
	}
}

// ModifyRequest carries only the fields to change; nil keeps the current value
type ModifyRequest struct {
	BrokerOrderID     string
	Quantity          *int
	Price             *decimal.Decimal
	TriggerPrice      *decimal.Decimal
	OrderType         *contracts.OrderType
	Validity          *contracts.Validity
	DisclosedQuantity *int
}

// OrderStatus is the venue's view of one order
type OrderStatus struct {
	BrokerOrderID   string           `json:"broker_order_id"`
	Status          contracts.Status `json:"status"`
	FilledQuantity  int              `json:"filled_quantity"`
	PendingQuantity int              `json:"pending_quantity"`
	AveragePrice    decimal.Decimal  `json:"average_price"`
	Message         string           `json:"message,omitempty"`
}

// BrokerOrder is an order-book entry
type BrokerOrder struct {
	BrokerOrderID   string              `json:"broker_order_id"`
	ExchangeOrderID string              `json:"exchange_order_id,omitempty"`
	InstrumentKey   string              `json:"instrument_key"`
	Side            contracts.OrderSide `json:"side"`
	OrderType       contracts.OrderType `json:"order_type"`
	Quantity        int                 `json:"quantity"`
	FilledQuantity  int                 `json:"filled_quantity"`
	Price           decimal.Decimal     `json:"price"`
	AveragePrice    decimal.Decimal     `json:"average_price"`
	Status          contracts.Status    `json:"status"`
	StatusMessage   string              `json:"status_message,omitempty"`
	Tag             string              `json:"tag,omitempty"`
}

// BrokerTrade is an execution report
type BrokerTrade struct {
	TradeID         string              `json:"trade_id"`
	BrokerOrderID   string              `json:"broker_order_id"`
	ExchangeOrderID string              `json:"exchange_order_id,omitempty"`
	InstrumentKey   string              `json:"instrument_key"`
	Side            contracts.OrderSide `json:"side"`
	Quantity        int                 `json:"quantity"`
	Price           decimal.Decimal     `json:"price"`
	TradedAt        time.Time           `json:"traded_at"`
}

// RateLimitStatus is the adapter's remaining budget for the current minute
type RateLimitStatus struct {
	Remaining int           `json:"remaining"`
	Limit     int           `json:"limit"`
	ResetIn   time.Duration `json:"reset_in"`
}

// splitBySide returns BUY requests then the rest, each in submission order
func splitBySide(reqs []OrderRequest) []OrderRequest {
	ordered := make([]OrderRequest, 0, len(reqs))
	for _, r := range reqs {
		if r.Side == contracts.OrderSideBuy {
			ordered = append(ordered, r)
		}
	}
	for _, r := range reqs {
		if r.Side != contracts.OrderSideBuy {
			ordered = append(ordered, r)
		}
	}
	return ordered
}
