package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Kvijay199428/VEGA-sub001/internal/contracts"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
)

// DefaultFallback is used when neither strategy nor user settings pick a broker
const DefaultFallback = Upstox

// ErrUnsupportedBroker is returned when an explicitly requested broker is not registered
var ErrUnsupportedBroker = errors.New("unsupported broker")

// Router resolves the adapter that serves an order
// ⭐ SSOT: 브로커 선택 순서 = 명시 → 전략 → 사용자 기본 → fallback
type Router struct {
	mu         sync.RWMutex
	adapters   map[string]Adapter
	settings   contracts.SettingsResolver
	strategies contracts.StrategyLookup
	fallback   string
	logger     *logger.Logger
}

// NewRouter creates a router; settings and strategies may be nil
func NewRouter(settings contracts.SettingsResolver, strategies contracts.StrategyLookup, fallback string, log *logger.Logger) *Router {
	if fallback == "" {
		fallback = DefaultFallback
	}
	return &Router{
		adapters:   make(map[string]Adapter),
		settings:   settings,
		strategies: strategies,
		fallback:   strings.ToUpper(fallback),
		logger:     log.WithComponent("broker_router"),
	}
}

// Register adds or replaces an adapter under its upper-cased name
func (r *Router) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[strings.ToUpper(a.Name())] = a
}

// Get returns the adapter registered under name (case-insensitive)
func (r *Router) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[strings.ToUpper(strings.TrimSpace(name))]
	return a, ok
}

// Names returns registered broker names, sorted
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fallback returns the system fallback broker name
func (r *Router) Fallback() string {
	return r.fallback
}

// Resolve picks the adapter for an order.
// An unknown explicit broker is an error; an unknown strategy or user broker is skipped with a warning.
func (r *Router) Resolve(ctx context.Context, userID, explicitBroker, strategyTag string) (Adapter, error) {
	if explicitBroker != "" {
		a, ok := r.Get(explicitBroker)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedBroker, strings.ToUpper(explicitBroker))
		}
		return a, nil
	}

	if strategyTag != "" && r.strategies != nil {
		if name, ok := r.strategies.BrokerForStrategy(ctx, strategyTag); ok {
			if a, found := r.Get(name); found {
				return a, nil
			}
			r.logger.WithFields(map[string]interface{}{
				"strategy": strategyTag,
				"broker":   name,
			}).Warn("Strategy broker not registered, falling through")
		}
	}

	if userID != "" && r.settings != nil {
		priority, err := r.settings.BrokerPriority(ctx, userID)
		if err != nil {
			r.logger.WithError(err).WithField("user_id", userID).Warn("Failed to read broker priority")
		} else if len(priority) > 0 {
			if a, found := r.Get(priority[0]); found {
				return a, nil
			}
			r.logger.WithFields(map[string]interface{}{
				"user_id": userID,
				"broker":  priority[0],
			}).Warn("User default broker not registered, using fallback")
		}
	}

	a, ok := r.Get(r.fallback)
	if !ok {
		return nil, fmt.Errorf("%w: fallback %s", ErrUnsupportedBroker, r.fallback)
	}
	return a, nil
}

// SplitForBroker chunks orders into batches the broker accepts in one call
func (r *Router) SplitForBroker(orders []OrderRequest, brokerName string) ([][]OrderRequest, error) {
	a, ok := r.Get(brokerName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBroker, strings.ToUpper(brokerName))
	}
	return SplitBatches(orders, a.Capabilities()), nil
}

// SplitBatches chunks orders into batches of at most capability.BatchSize()
func SplitBatches(orders []OrderRequest, capability Capability) [][]OrderRequest {
	size := capability.BatchSize()
	batches := make([][]OrderRequest, 0, (len(orders)+size-1)/size)
	for start := 0; start < len(orders); start += size {
		end := start + size
		if end > len(orders) {
			end = len(orders)
		}
		batches = append(batches, orders[start:end])
	}
	return batches
}

// Capabilities returns every registered adapter's capability, keyed by broker name
func (r *Router) Capabilities() map[string]Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Capability, len(r.adapters))
	for name, a := range r.adapters {
		out[name] = a.Capabilities()
	}
	return out
}
