package persistence

import (
	"context"
	"sync"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
)

// MemoryStore keeps everything in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[string]contracts.Order
	byUser  map[string][]string
	audit   map[string][]contracts.AuditEvent
	seq     int64
	charges map[string]contracts.OrderCharges
	latency map[string]contracts.LatencyMetrics
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[string]contracts.Order),
		byUser:  make(map[string][]string),
		audit:   make(map[string][]contracts.AuditEvent),
		charges: make(map[string]contracts.OrderCharges),
		latency: make(map[string]contracts.LatencyMetrics),
	}
}

func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (contracts.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return contracts.Order{}, ErrOrderNotFound
	}
	return o, nil
}

func (s *MemoryStore) PutOrder(_ context.Context, order contracts.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.OrderID]; !exists {
		s.byUser[order.UserID] = append(s.byUser[order.UserID], order.OrderID)
	}
	s.orders[order.OrderID] = order
	return nil
}

func (s *MemoryStore) OrdersByUser(_ context.Context, userID string) ([]contracts.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]contracts.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id])
	}
	return out, nil
}

func (s *MemoryStore) AllOrders(_ context.Context) ([]contracts.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]contracts.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	return out, nil
}

func (s *MemoryStore) AppendAudit(_ context.Context, event contracts.AuditEvent) (contracts.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	event.Seq = s.seq
	s.audit[event.OrderID] = append(s.audit[event.OrderID], event)
	return event, nil
}

func (s *MemoryStore) AuditLog(_ context.Context, orderID string) ([]contracts.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]contracts.AuditEvent(nil), s.audit[orderID]...), nil
}

func (s *MemoryStore) PutCharges(_ context.Context, charges contracts.OrderCharges) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charges[charges.OrderID] = charges
	return nil
}

func (s *MemoryStore) GetCharges(_ context.Context, orderID string) (*contracts.OrderCharges, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.charges[orderID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) PutLatency(_ context.Context, latency contracts.LatencyMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency[latency.OrderID] = latency
	return nil
}

func (s *MemoryStore) GetLatency(_ context.Context, orderID string) (*contracts.LatencyMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.latency[orderID]
	if !ok {
		return nil, nil
	}
	return &l, nil
}
