package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Kvijay199428/VEGA-sub001/internal/broker"
	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/persistence"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// Monitor reconciles stored orders with the venue's view
// ⭐ SSOT: 체결 모니터링 로직은 여기서만
type Monitor struct {
	router *broker.Router
	orders *persistence.Orchestrator
	clock  clock.Clock
	logger *logger.Logger
	config MonitorConfig
	trades TradeRecorder
}

// TradeRecorder receives executions discovered while reconciling.
// Registering a trade id twice must be harmless.
type TradeRecorder interface {
	RegisterTrade(ctx context.Context, trade contracts.Trade) error
}

// MonitorConfig defines monitoring parameters
type MonitorConfig struct {
	PollInterval time.Duration // 상태 조회 주기
	CallTimeout  time.Duration // venue 조회 타임아웃
	MaxPerRun    int           // 1회 최대 조회 건수 (0 = 무제한)
}

// DefaultMonitorConfig returns default monitoring configuration
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		PollInterval: 5 * time.Second, // 5초마다 조회
		CallTimeout:  5 * time.Second,
		MaxPerRun:    500,
	}
}

// ReconcileReport summarises one pass
type ReconcileReport struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// NewMonitor creates a new execution monitor
func NewMonitor(router *broker.Router, orders *persistence.Orchestrator, clk clock.Clock, log *logger.Logger, config MonitorConfig) *Monitor {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Monitor{
		router: router,
		orders: orders,
		clock:  clk,
		logger: log.WithComponent("monitor"),
		config: config,
	}
}

// WithTrades forwards venue executions of newly filled quantity to r
func (m *Monitor) WithTrades(r TradeRecorder) *Monitor {
	m.trades = r
	return m
}

// ReconcileOnce checks every non-terminal order once
func (m *Monitor) ReconcileOnce(ctx context.Context) (ReconcileReport, error) {
	all, err := m.orders.GetAllOrders(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("load orders: %w", err)
	}
	return m.reconcile(ctx, all), nil
}

// ReconcileUser checks the user's non-terminal orders once
func (m *Monitor) ReconcileUser(ctx context.Context, userID string) (ReconcileReport, error) {
	open, err := m.orders.GetOpenOrders(ctx, userID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("load orders for %s: %w", userID, err)
	}
	return m.reconcile(ctx, open), nil
}

// Run reconciles every PollInterval until ctx ends
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.clock.After(m.config.PollInterval):
			if _, err := m.ReconcileOnce(ctx); err != nil {
				m.logger.WithError(err).Warn("Reconciliation pass failed")
			}
		}
	}
}

func (m *Monitor) reconcile(ctx context.Context, orders []contracts.Order) ReconcileReport {
	var report ReconcileReport
	for _, order := range orders {
		if order.IsComplete() || order.BrokerOrderID == "" {
			continue
		}
		if m.config.MaxPerRun > 0 && report.Checked >= m.config.MaxPerRun {
			break
		}
		report.Checked++

		updated, err := m.reconcileOrder(ctx, order)
		if err != nil {
			report.Failed++
			m.logger.WithFields(map[string]interface{}{
				"order_id": order.OrderID,
				"error":    err.Error(),
			}).Warn("Failed to reconcile order")
			continue
		}
		if updated {
			report.Updated++
		}
	}

	if report.Updated > 0 || report.Failed > 0 {
		m.logger.WithFields(map[string]interface{}{
			"checked": report.Checked,
			"updated": report.Updated,
			"failed":  report.Failed,
		}).Info("Reconciliation pass completed")
	}
	return report
}

// reconcileOrder applies the venue status when it is a legal step forward
func (m *Monitor) reconcileOrder(ctx context.Context, order contracts.Order) (bool, error) {
	adapter, ok := m.router.Get(order.Broker)
	if !ok {
		return false, fmt.Errorf("%w: %s", broker.ErrUnsupportedBroker, order.Broker)
	}

	callCtx := ctx
	if m.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.config.CallTimeout)
		defer cancel()
	}

	status, err := adapter.GetOrderStatus(callCtx, order.BrokerOrderID)
	if err != nil {
		return false, err
	}

	if status.Status == order.Status && status.FilledQuantity == order.FilledQuantity {
		return false, nil
	}
	if status.Status != order.Status && !order.Status.CanTransitionTo(status.Status) {
		m.logger.WithFields(map[string]interface{}{
			"order_id":     order.OrderID,
			"status":       order.Status,
			"venue_status": status.Status,
		}).Debug("Venue status behind stored status")
		return false, nil
	}

	filled := max(order.FilledQuantity, min(status.FilledQuantity, order.Quantity))
	if _, err := m.orders.ApplyFill(ctx, order.OrderID, status.Status, filled, status.AveragePrice); err != nil {
		return false, err
	}

	m.logger.WithFields(map[string]interface{}{
		"order_id":      order.OrderID,
		"status":        status.Status,
		"filled_qty":    filled,
		"average_price": status.AveragePrice.String(),
	}).Info("Order reconciled")

	if m.trades != nil && status.FilledQuantity > order.FilledQuantity {
		m.recordTrades(callCtx, adapter, order)
	}
	return true, nil
}

// recordTrades registers the venue's executions for order
func (m *Monitor) recordTrades(ctx context.Context, adapter broker.Adapter, order contracts.Order) {
	fills, err := adapter.GetOrderTrades(ctx, order.BrokerOrderID)
	if err != nil {
		m.logger.WithFields(map[string]interface{}{
			"order_id": order.OrderID,
			"error":    err.Error(),
		}).Warn("Failed to fetch order trades")
		return
	}

	segment := order.Segment()
	exchange, _, _ := strings.Cut(segment, "_")
	for _, f := range fills {
		trade := contracts.Trade{
			TradeID:         f.TradeID,
			OrderID:         order.OrderID,
			ExchangeOrderID: f.ExchangeOrderID,
			UserID:          order.UserID,
			Exchange:        exchange,
			Segment:         segment,
			InstrumentKey:   f.InstrumentKey,
			Side:            f.Side,
			Quantity:        f.Quantity,
			Price:           f.Price,
			TradedAt:        f.TradedAt,
		}
		if err := m.trades.RegisterTrade(ctx, trade); err != nil {
			m.logger.WithFields(map[string]interface{}{
				"order_id": order.OrderID,
				"trade_id": f.TradeID,
				"error":    err.Error(),
			}).Warn("Failed to register trade")
		}
	}
}
