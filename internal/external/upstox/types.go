package upstox

import "fmt"

// ============================================================
// Request Types
// ============================================================

// PlaceOrderRequest is the body of POST /order/place
type PlaceOrderRequest struct {
	Quantity          int     `json:"quantity"`
	Product           string  `json:"product"`  // I, D, CO, MTF
	Validity          string  `json:"validity"` // DAY, IOC
	Price             float64 `json:"price"`
	Tag               string  `json:"tag,omitempty"`
	InstrumentToken   string  `json:"instrument_token"` // NSE_EQ|INE467B01029
	OrderType         string  `json:"order_type"`       // MARKET, LIMIT, SL, SL-M
	TransactionType   string  `json:"transaction_type"` // BUY, SELL
	DisclosedQuantity int     `json:"disclosed_quantity"`
	TriggerPrice      float64 `json:"trigger_price"`
	IsAMO             bool    `json:"is_amo"`
	Slice             bool    `json:"slice,omitempty"`
}

// MultiOrderLine is one entry of POST /order/multi/place
type MultiOrderLine struct {
	CorrelationID string `json:"correlation_id"`
	PlaceOrderRequest
}

// ModifyOrderRequest is the body of PUT /order/modify
type ModifyOrderRequest struct {
	OrderID           string  `json:"order_id"`
	Quantity          int     `json:"quantity,omitempty"`
	Validity          string  `json:"validity,omitempty"`
	Price             float64 `json:"price"`
	OrderType         string  `json:"order_type,omitempty"`
	DisclosedQuantity int     `json:"disclosed_quantity,omitempty"`
	TriggerPrice      float64 `json:"trigger_price"`
}

// ============================================================
// Response Types
// ============================================================

// OrderRef carries the venue order id
type OrderRef struct {
	OrderID string `json:"order_id"`
}

// MultiOrderRef is one acknowledged line of a multi-order call
type MultiOrderRef struct {
	CorrelationID string `json:"correlation_id"`
	OrderID       string `json:"order_id"`
}

// Order is an entry of the venue order book
type Order struct {
	OrderID           string  `json:"order_id"`
	ExchangeOrderID   string  `json:"exchange_order_id"`
	Exchange          string  `json:"exchange"`
	InstrumentToken   string  `json:"instrument_token"`
	TradingSymbol     string  `json:"trading_symbol"`
	Product           string  `json:"product"`
	OrderType         string  `json:"order_type"`
	TransactionType   string  `json:"transaction_type"`
	Validity          string  `json:"validity"`
	Quantity          int     `json:"quantity"`
	FilledQuantity    int     `json:"filled_quantity"`
	PendingQuantity   int     `json:"pending_quantity"`
	DisclosedQuantity int     `json:"disclosed_quantity"`
	Price             float64 `json:"price"`
	TriggerPrice      float64 `json:"trigger_price"`
	AveragePrice      float64 `json:"average_price"`
	Status            string  `json:"status"`
	StatusMessage     string  `json:"status_message"`
	Tag               string  `json:"tag"`
	OrderTimestamp    string  `json:"order_timestamp"` // 2006-01-02 15:04:05
}

// Trade is an execution reported by the venue
type Trade struct {
	TradeID         string  `json:"trade_id"`
	OrderID         string  `json:"order_id"`
	ExchangeOrderID string  `json:"exchange_order_id"`
	Exchange        string  `json:"exchange"`
	InstrumentToken string  `json:"instrument_token"`
	TransactionType string  `json:"transaction_type"`
	Quantity        int     `json:"quantity"`
	AveragePrice    float64 `json:"average_price"`
	OrderTimestamp  string  `json:"order_timestamp"`
	ExchangeTime    string  `json:"exchange_timestamp"`
}

// Profile is the authenticated user's profile (availability probe)
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Exchanges []string `json:"exchanges"`
	IsActive  bool     `json:"is_active"`
}

// ============================================================
// Envelope (Internal)
// ============================================================

// apiError is one entry of the "errors" array
type apiError struct {
	ErrorCode     string `json:"errorCode"`
	Message       string `json:"message"`
	PropertyPath  string `json:"propertyPath"`
	InstrumentKey string `json:"instrument_key"`
	OrderID       string `json:"order_id"`
	CorrelationID string `json:"correlation_id"`
}

// envelope wraps every response: {"status":"success","data":...,"errors":[...]}
type envelope struct {
	Status string     `json:"status"`
	Errors []apiError `json:"errors"`
}

// APIError is returned when the venue answers with a non-2xx status or status=error
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("upstox API error status %d: %s", e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("upstox API error status %d: %s - %s", e.HTTPStatus, e.Code, e.Message)
}

// MultiOrderError is a per-line rejection of a multi-order call
type MultiOrderError struct {
	CorrelationID string
	Code          string
	Message       string
}
