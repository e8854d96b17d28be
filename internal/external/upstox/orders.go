package upstox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Endpoint paths (relative to the v2 base URL)
const (
	PathPlaceOrder    = "/order/place"
	PathMultiPlace    = "/order/multi/place"
	PathModifyOrder   = "/order/modify"
	PathCancelOrder   = "/order/cancel"
	PathMultiCancel   = "/order/multi/cancel"
	PathOrderDetails  = "/order/details"
	PathOrderBook     = "/order/retrieve-all"
	PathTradesForDay  = "/order/trades/get-trades-for-day"
	PathOrderTrades   = "/order/trades"
	PathExitPositions = "/order/positions/exit"
)

// PlaceOrder places a single order and returns the venue order id
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (string, error) {
	var ref OrderRef
	if err := c.request(ctx, http.MethodPost, PathPlaceOrder, nil, req, &ref); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"instrument": req.InstrumentToken,
			"side":       req.TransactionType,
			"error":      err.Error(),
		}).Error("Order placement failed")
		return "", fmt.Errorf("place order: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": req.InstrumentToken,
		"side":       req.TransactionType,
		"order_id":   ref.OrderID,
		"quantity":   req.Quantity,
		"price":      req.Price,
	}).Info("Order placed successfully")

	return ref.OrderID, nil
}

// PlaceMultiOrder places a batch in one call. Accepted lines are returned as
// refs; rejected lines as per-correlation errors. A transport or whole-call
// failure is returned as err.
func (c *Client) PlaceMultiOrder(ctx context.Context, lines []MultiOrderLine) ([]MultiOrderRef, []MultiOrderError, error) {
	env, raw, err := c.exchange(ctx, http.MethodPost, PathMultiPlace, nil, lines)
	if err != nil {
		return nil, nil, fmt.Errorf("place multi order: %w", err)
	}

	var body struct {
		Data []MultiOrderRef `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, nil, fmt.Errorf("decode multi order response: %w", err)
	}

	rejected := make([]MultiOrderError, 0, len(env.Errors))
	for _, e := range env.Errors {
		rejected = append(rejected, MultiOrderError{
			CorrelationID: e.CorrelationID,
			Code:          e.ErrorCode,
			Message:       e.Message,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"lines":    len(lines),
		"accepted": len(body.Data),
		"rejected": len(rejected),
	}).Info("Multi order placed")

	return body.Data, rejected, nil
}

// ModifyOrder modifies an open order
func (c *Client) ModifyOrder(ctx context.Context, req ModifyOrderRequest) (string, error) {
	var ref OrderRef
	if err := c.request(ctx, http.MethodPut, PathModifyOrder, nil, req, &ref); err != nil {
		return "", fmt.Errorf("modify order: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"order_id": req.OrderID,
	}).Info("Order modified successfully")

	return ref.OrderID, nil
}

// CancelOrder cancels an open order
func (c *Client) CancelOrder(ctx context.Context, orderID string) (string, error) {
	var ref OrderRef
	query := url.Values{"order_id": {orderID}}
	if err := c.request(ctx, http.MethodDelete, PathCancelOrder, query, nil, &ref); err != nil {
		return "", fmt.Errorf("cancel order: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"order_id": orderID,
	}).Info("Order cancelled successfully")

	return ref.OrderID, nil
}

// GetOrderDetails returns the latest state of one order
func (c *Client) GetOrderDetails(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	query := url.Values{"order_id": {orderID}}
	if err := c.request(ctx, http.MethodGet, PathOrderDetails, query, nil, &order); err != nil {
		return nil, fmt.Errorf("order details: %w", err)
	}
	return &order, nil
}

// GetOrderBook returns every order of the day
func (c *Client) GetOrderBook(ctx context.Context) ([]Order, error) {
	orders := make([]Order, 0)
	if err := c.request(ctx, http.MethodGet, PathOrderBook, nil, nil, &orders); err != nil {
		return nil, fmt.Errorf("order book: %w", err)
	}
	return orders, nil
}

// GetTradesForDay returns every execution of the day
func (c *Client) GetTradesForDay(ctx context.Context) ([]Trade, error) {
	trades := make([]Trade, 0)
	if err := c.request(ctx, http.MethodGet, PathTradesForDay, nil, nil, &trades); err != nil {
		return nil, fmt.Errorf("trades for day: %w", err)
	}
	return trades, nil
}

// GetOrderTrades returns the executions of one order
func (c *Client) GetOrderTrades(ctx context.Context, orderID string) ([]Trade, error) {
	trades := make([]Trade, 0)
	query := url.Values{"order_id": {orderID}}
	if err := c.request(ctx, http.MethodGet, PathOrderTrades, query, nil, &trades); err != nil {
		return nil, fmt.Errorf("order trades: %w", err)
	}
	return trades, nil
}

// ExitPositions squares off open positions, optionally filtered by segment and tag.
// It returns the ids of the exit orders the venue created.
func (c *Client) ExitPositions(ctx context.Context, segment, tag string) ([]string, error) {
	query := url.Values{}
	if segment != "" {
		query.Set("segment", segment)
	}
	if tag != "" {
		query.Set("tag", tag)
	}

	var data struct {
		OrderIDs []string `json:"order_ids"`
	}
	if err := c.request(ctx, http.MethodPost, PathExitPositions, query, nil, &data); err != nil {
		return nil, fmt.Errorf("exit positions: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"segment": segment,
		"tag":     tag,
		"exits":   len(data.OrderIDs),
	}).Info("Positions exited")

	return data.OrderIDs, nil
}
