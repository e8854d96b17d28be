package contracts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a venue-reported execution against an order
type Trade struct {
	TradeID         string          `json:"trade_id"`
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id,omitempty"`
	UserID          string          `json:"user_id"`
	Exchange        string          `json:"exchange"`
	Segment         string          `json:"segment"`
	InstrumentKey   string          `json:"instrument_key"`
	Side            OrderSide       `json:"side"`
	Quantity        int             `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	Charges         *OrderCharges   `json:"charges,omitempty"`
	TradedAt        time.Time       `json:"traded_at"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Value returns quantity × price
func (t Trade) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

// OrderCharges is the statutory and brokerage breakdown for an order
type OrderCharges struct {
	OrderID           string          `json:"order_id"`
	Brokerage         decimal.Decimal `json:"brokerage"`
	ExchangeTxnCharge decimal.Decimal `json:"exchange_txn_charge"`
	SEBIFee           decimal.Decimal `json:"sebi_fee"`
	STT               decimal.Decimal `json:"stt"`
	StampDuty         decimal.Decimal `json:"stamp_duty"`
	GST               decimal.Decimal `json:"gst"`
	IPF               decimal.Decimal `json:"ipf"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	CalculatedAt      time.Time       `json:"calculated_at"`
}

// LatencyMetrics records how long an order took from request to acknowledgement
type LatencyMetrics struct {
	OrderID          string    `json:"order_id"`
	BrokerLatencyMs  int64     `json:"broker_latency_ms"`
	SystemLatencyMs  int64     `json:"system_latency_ms"`
	NetworkLatencyMs int64     `json:"network_latency_ms"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// CaptureLatency splits an elapsed duration 60/30/10 into broker/system/network shares
func CaptureLatency(orderID string, elapsed time.Duration, at time.Time) *LatencyMetrics {
	total := elapsed.Milliseconds()
	return &LatencyMetrics{
		OrderID:          orderID,
		BrokerLatencyMs:  total * 6 / 10,
		SystemLatencyMs:  total * 3 / 10,
		NetworkLatencyMs: total / 10,
		TotalLatencyMs:   total,
		RecordedAt:       at,
	}
}
