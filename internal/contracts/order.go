package contracts

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents an order acknowledged by a venue and owned by the persistence orchestrator
// ⭐ SSOT: 주문 상태는 이 값 타입으로만 전달 (in-place 변경 금지, 교체만 허용)
type Order struct {
	OrderID       string `json:"order_id"`
	BrokerOrderID string `json:"broker_order_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ParentOrderID string `json:"parent_order_id,omitempty"` // set on sliced children

	// Routing
	UserID      string `json:"user_id"`
	Broker      string `json:"broker"`
	Tag         string `json:"tag,omitempty"`
	StrategyTag string `json:"strategy_tag,omitempty"`

	// Instrument
	Exchange      string `json:"exchange,omitempty"`
	Symbol        string `json:"symbol,omitempty"`
	InstrumentKey string `json:"instrument_key"` // "NSE_EQ|INE467B01029"

	// Terms
	Side              OrderSide       `json:"side"`
	OrderType         OrderType       `json:"order_type"`
	Product           Product         `json:"product"`
	Quantity          int             `json:"quantity"`
	Price             decimal.Decimal `json:"price"`
	TriggerPrice      decimal.Decimal `json:"trigger_price"`
	DisclosedQuantity int             `json:"disclosed_quantity"`
	Validity          Validity        `json:"validity"`

	// Lifecycle
	Status         Status          `json:"status"`
	FilledQuantity int             `json:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	PlacedAt       time.Time       `json:"placed_at"`
	AcknowledgedAt *time.Time      `json:"acknowledged_at,omitempty"`
	FinalStatusAt  *time.Time      `json:"final_status_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// OrderSide represents buy or sell
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the pricing instruction
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSL     OrderType = "SL"
	OrderTypeSLM    OrderType = "SL_M"
)

// Product represents the margin product
type Product string

const (
	ProductIntraday Product = "I"   // MIS
	ProductDelivery Product = "D"   // CNC
	ProductCover    Product = "CO"  // Cover order
	ProductMTF      Product = "MTF" // Margin trading facility
)

// Validity represents order time-in-force
type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
)

// ParseSide parses BUY / SELL case-insensitively
func ParseSide(s string) (OrderSide, error) {
	switch OrderSide(strings.ToUpper(strings.TrimSpace(s))) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	}
	return "", fmt.Errorf("invalid transaction type: %q", s)
}

// ParseOrderType accepts venue spellings such as "SL-M"
func ParseOrderType(s string) (OrderType, error) {
	normalized := OrderType(strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "-", "_"))
	switch normalized {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeSL, OrderTypeSLM:
		return normalized, nil
	}
	return "", fmt.Errorf("invalid order type: %q", s)
}

// VenueName returns the spelling venues expect ("SL-M")
func (t OrderType) VenueName() string {
	return strings.ReplaceAll(string(t), "_", "-")
}

// RequiresPrice reports whether a limit price is mandatory
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeSL
}

// RequiresTrigger reports whether a trigger price is mandatory
func (t OrderType) RequiresTrigger() bool {
	return t == OrderTypeSL || t == OrderTypeSLM
}

// ParseProduct parses I / D / CO / MTF
func ParseProduct(s string) (Product, error) {
	p := Product(strings.ToUpper(strings.TrimSpace(s)))
	switch p {
	case ProductIntraday, ProductDelivery, ProductCover, ProductMTF:
		return p, nil
	}
	return "", fmt.Errorf("invalid product: %q", s)
}

// ParseValidity defaults to DAY when empty
func ParseValidity(s string) (Validity, error) {
	v := Validity(strings.ToUpper(strings.TrimSpace(s)))
	switch v {
	case "":
		return ValidityDay, nil
	case ValidityDay, ValidityIOC:
		return v, nil
	}
	return "", fmt.Errorf("invalid validity: %q", s)
}

// IsComplete checks if the order reached a terminal state
func (o Order) IsComplete() bool {
	return o.Status.IsComplete()
}

// IsModifiable checks if the order can still be modified or cancelled
func (o Order) IsModifiable() bool {
	return o.Status.IsModifiable()
}

// IsPartiallyFilled checks if some but not all quantity is filled
func (o Order) IsPartiallyFilled() bool {
	return o.FilledQuantity > 0 && o.FilledQuantity < o.Quantity
}

// PendingQuantity returns the unfilled quantity
func (o Order) PendingQuantity() int {
	return o.Quantity - o.FilledQuantity
}

// Segment returns the exchange segment ("NSE_EQ"), falling back to the instrument key prefix
func (o Order) Segment() string {
	if o.Exchange != "" {
		return o.Exchange
	}
	return SegmentOf(o.InstrumentKey)
}

// WithStatus returns a copy moved to status at the given time
func (o Order) WithStatus(status Status, at time.Time) Order {
	next := o
	next.Status = status
	next.UpdatedAt = at
	if status == StatusAcknowledged && next.AcknowledgedAt == nil {
		ackAt := at
		next.AcknowledgedAt = &ackAt
	}
	if status.IsComplete() {
		finalAt := at
		next.FinalStatusAt = &finalAt
	}
	if status == StatusFilled {
		next.FilledQuantity = next.Quantity
		if next.AveragePrice.IsZero() {
			next.AveragePrice = next.Price
		}
	}
	return next
}

// SegmentOf extracts the segment from an instrument key ("NSE_FO|NIFTY24JAN" → "NSE_FO")
func SegmentOf(instrumentKey string) string {
	if idx := strings.Index(instrumentKey, "|"); idx > 0 {
		return instrumentKey[:idx]
	}
	return ""
}
