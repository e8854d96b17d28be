package persistence

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// stripes bounds the per-order writer locks
const stripes = 64

// DefaultSubscriberBuffer is the channel size handed out by Subscribe
const DefaultSubscriberBuffer = 256

// Orchestrator persists orders only after venue acknowledgement and keeps the audit trail
// ⭐ SSOT: 주문 상태 변경은 Orchestrator를 통해서만 (감사 이벤트 동시 기록)
type Orchestrator struct {
	store   Store
	locks   [stripes]sync.Mutex
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *logger.Logger

	subMu       sync.RWMutex
	subscribers map[int]chan contracts.AuditEvent
	nextSubID   int
}

// NewOrchestrator creates an orchestrator over store; m may be nil
func NewOrchestrator(store Store, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Orchestrator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Orchestrator{
		store:       store,
		clock:       clk,
		metrics:     m,
		logger:      log.WithComponent("persistence"),
		subscribers: make(map[int]chan contracts.AuditEvent),
	}
}

func (o *Orchestrator) lockFor(orderID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(orderID))
	return &o.locks[h.Sum32()%stripes]
}

// ============================================================
// Writes
// ============================================================

// Persist stores an acknowledged order with optional charges and latency
// and appends ORDER_PERSISTED
func (o *Orchestrator) Persist(ctx context.Context, order contracts.Order, charges *contracts.OrderCharges, latency *contracts.LatencyMetrics) (contracts.Order, error) {
	if order.OrderID == "" {
		return contracts.Order{}, fmt.Errorf("persist: order id is required")
	}
	if order.FilledQuantity > order.Quantity {
		return contracts.Order{}, fmt.Errorf("persist %s: filled quantity %d exceeds quantity %d", order.OrderID, order.FilledQuantity, order.Quantity)
	}

	lock := o.lockFor(order.OrderID)
	lock.Lock()
	defer lock.Unlock()

	now := o.clock.Now()
	if order.PlacedAt.IsZero() {
		order.PlacedAt = now
	}
	order.UpdatedAt = now
	if order.Status == contracts.StatusAcknowledged && order.AcknowledgedAt == nil {
		ackAt := now
		order.AcknowledgedAt = &ackAt
	}

	if err := o.store.PutOrder(ctx, order); err != nil {
		return contracts.Order{}, fmt.Errorf("persist %s: %w", order.OrderID, err)
	}
	if charges != nil {
		c := *charges
		c.OrderID = order.OrderID
		if err := o.store.PutCharges(ctx, c); err != nil {
			return contracts.Order{}, fmt.Errorf("persist charges %s: %w", order.OrderID, err)
		}
	}
	if latency != nil {
		l := *latency
		l.OrderID = order.OrderID
		if err := o.store.PutLatency(ctx, l); err != nil {
			return contracts.Order{}, fmt.Errorf("persist latency %s: %w", order.OrderID, err)
		}
	}

	if err := o.appendAudit(ctx, contracts.NewPersistedEvent(order, now)); err != nil {
		return contracts.Order{}, err
	}

	o.logger.WithFields(map[string]interface{}{
		"order_id":        order.OrderID,
		"broker_order_id": order.BrokerOrderID,
		"user_id":         order.UserID,
		"status":          order.Status,
	}).Debug("Order persisted")

	return order, nil
}

// UpdateStatus replaces the order with newStatus and appends STATUS_CHANGED.
// Setting the current status again is a no-op without an event.
func (o *Orchestrator) UpdateStatus(ctx context.Context, orderID string, newStatus contracts.Status) (contracts.Order, error) {
	return o.Update(ctx, orderID, func(current contracts.Order) (contracts.Order, error) {
		return current.WithStatus(newStatus, o.clock.Now()), nil
	})
}

// ApplyFill records venue fill progress together with the status it implies
func (o *Orchestrator) ApplyFill(ctx context.Context, orderID string, status contracts.Status, filledQty int, averagePrice decimal.Decimal) (contracts.Order, error) {
	return o.Update(ctx, orderID, func(current contracts.Order) (contracts.Order, error) {
		if filledQty < current.FilledQuantity || filledQty > current.Quantity {
			return current, fmt.Errorf("fill %d outside [%d, %d]", filledQty, current.FilledQuantity, current.Quantity)
		}
		next := current.WithStatus(status, o.clock.Now())
		if status != contracts.StatusFilled {
			next.FilledQuantity = filledQty
		}
		if !averagePrice.IsZero() {
			next.AveragePrice = averagePrice
		}
		return next, nil
	})
}

// Update applies mutate to the current order under its writer lock.
// A status change must be a legal transition; changed terms append ORDER_MODIFIED.
func (o *Orchestrator) Update(ctx context.Context, orderID string, mutate func(contracts.Order) (contracts.Order, error)) (contracts.Order, error) {
	lock := o.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	current, err := o.store.GetOrder(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		o.logger.WithOrder(orderID).Warn("Update for unknown order ignored")
		return contracts.Order{}, ErrOrderNotFound
	}
	if err != nil {
		return contracts.Order{}, fmt.Errorf("load %s: %w", orderID, err)
	}

	next, err := mutate(current)
	if err != nil {
		return current, err
	}
	next.OrderID = current.OrderID

	statusChanged := next.Status != current.Status
	if statusChanged && !current.Status.CanTransitionTo(next.Status) {
		return current, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, current.Status, next.Status)
	}
	changes := termChanges(current, next)
	if !statusChanged && len(changes) == 0 && next.FilledQuantity == current.FilledQuantity {
		return current, nil
	}

	now := o.clock.Now()
	next.UpdatedAt = now
	if err := o.store.PutOrder(ctx, next); err != nil {
		return current, fmt.Errorf("update %s: %w", orderID, err)
	}

	if len(changes) > 0 {
		if err := o.appendAudit(ctx, contracts.NewModifiedEvent(orderID, changes, now)); err != nil {
			return next, err
		}
	}
	if statusChanged {
		if err := o.appendAudit(ctx, contracts.NewStatusChangedEvent(orderID, current.Status, next.Status, now)); err != nil {
			return next, err
		}
		o.logger.WithFields(map[string]interface{}{
			"order_id":   orderID,
			"old_status": current.Status,
			"new_status": next.Status,
		}).Info("Order status changed")
	}

	return next, nil
}

// termChanges names the order terms that differ, with their new values
func termChanges(before, after contracts.Order) map[string]string {
	changes := make(map[string]string)
	if before.Quantity != after.Quantity {
		changes["quantity"] = fmt.Sprintf("%d", after.Quantity)
	}
	if !before.Price.Equal(after.Price) {
		changes["price"] = after.Price.String()
	}
	if !before.TriggerPrice.Equal(after.TriggerPrice) {
		changes["trigger_price"] = after.TriggerPrice.String()
	}
	if before.OrderType != after.OrderType {
		changes["order_type"] = string(after.OrderType)
	}
	if before.Validity != after.Validity {
		changes["validity"] = string(after.Validity)
	}
	if before.DisclosedQuantity != after.DisclosedQuantity {
		changes["disclosed_quantity"] = fmt.Sprintf("%d", after.DisclosedQuantity)
	}
	return changes
}

func (o *Orchestrator) appendAudit(ctx context.Context, event contracts.AuditEvent) error {
	stored, err := o.store.AppendAudit(ctx, event)
	if err != nil {
		return fmt.Errorf("append audit %s: %w", event.OrderID, err)
	}
	o.publish(stored)
	return nil
}

// ============================================================
// Reads
// ============================================================

// GetOrder returns a copy of the order
func (o *Orchestrator) GetOrder(ctx context.Context, orderID string) (contracts.Order, error) {
	return o.store.GetOrder(ctx, orderID)
}

// GetOrdersByUser returns the user's orders, newest first
func (o *Orchestrator) GetOrdersByUser(ctx context.Context, userID string) ([]contracts.Order, error) {
	orders, err := o.store.OrdersByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("orders for %s: %w", userID, err)
	}
	sortNewestFirst(orders)
	return orders, nil
}

// GetRecentOrders returns at most limit of the user's newest orders
func (o *Orchestrator) GetRecentOrders(ctx context.Context, userID string, limit int) ([]contracts.Order, error) {
	orders, err := o.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit >= 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// GetOpenOrders returns the user's non-terminal orders, newest first
func (o *Orchestrator) GetOpenOrders(ctx context.Context, userID string) ([]contracts.Order, error) {
	orders, err := o.GetOrdersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	open := orders[:0]
	for _, order := range orders {
		if !order.IsComplete() {
			open = append(open, order)
		}
	}
	return open, nil
}

// GetAllOrders returns every order, newest first
func (o *Orchestrator) GetAllOrders(ctx context.Context) ([]contracts.Order, error) {
	orders, err := o.store.AllOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("all orders: %w", err)
	}
	sortNewestFirst(orders)
	return orders, nil
}

// GetAuditLog returns the order's events in append order
func (o *Orchestrator) GetAuditLog(ctx context.Context, orderID string) ([]contracts.AuditEvent, error) {
	return o.store.AuditLog(ctx, orderID)
}

// GetCharges returns the order's charges, nil when none were recorded
func (o *Orchestrator) GetCharges(ctx context.Context, orderID string) (*contracts.OrderCharges, error) {
	return o.store.GetCharges(ctx, orderID)
}

// GetLatency returns the order's latency, nil when none was recorded
func (o *Orchestrator) GetLatency(ctx context.Context, orderID string) (*contracts.LatencyMetrics, error) {
	return o.store.GetLatency(ctx, orderID)
}

func sortNewestFirst(orders []contracts.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].PlacedAt.After(orders[j].PlacedAt)
	})
}

// ============================================================
// Event fan-out
// ============================================================

// Subscribe returns a channel receiving every appended audit event and a cancel func.
// Sends never block; a full subscriber loses the event.
func (o *Orchestrator) Subscribe(buffer int) (<-chan contracts.AuditEvent, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan contracts.AuditEvent, buffer)

	o.subMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subscribers[id] = ch
	o.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subscribers, id)
			o.subMu.Unlock()
			close(ch)
		})
	}
}

func (o *Orchestrator) publish(event contracts.AuditEvent) {
	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for _, ch := range o.subscribers {
		select {
		case ch <- event:
		default:
			if o.metrics != nil {
				o.metrics.AuditDropped.Inc()
			}
		}
	}
}
