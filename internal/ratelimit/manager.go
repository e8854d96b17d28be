package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

// DefaultMaxRetries is used by Wait
const DefaultMaxRetries = 3

// Manager owns one limiter per category and picks one by endpoint path
// ⭐ SSOT: 외부 브로커 호출 레이트 리밋은 Manager를 통해서만
type Manager struct {
	limiters   map[Category]Limiter
	maxRetries int
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// NewManager wires the two category limiters
func NewManager(standard, multi Limiter, m *metrics.Metrics, log *logger.Logger) *Manager {
	return &Manager{
		limiters: map[Category]Limiter{
			CategoryStandard:   standard,
			CategoryMultiOrder: multi,
		},
		maxRetries: DefaultMaxRetries,
		metrics:    m,
		logger:     log.WithComponent("ratelimit"),
	}
}

// NewManagerFromConfig builds in-process limiters, or Redis-backed ones when the client is enabled.
// name scopes Redis keys per venue (e.g. "upstox").
func NewManagerFromConfig(name string, cfg config.RateLimitConfig, rdb *redis.Client, clk clock.Clock, m *metrics.Metrics, log *logger.Logger) *Manager {
	standard := StandardProfile(cfg.Standard)
	multi := MultiOrderProfile(cfg.MultiOrder)

	if rdb != nil && rdb.Enabled() {
		store := redis.NewWindowLimiter(rdb, "vega")
		return NewManager(
			NewDistributed(name+":"+string(CategoryStandard), standard, store, clk, log),
			NewDistributed(name+":"+string(CategoryMultiOrder), multi, store, clk, log),
			m, log,
		)
	}

	return NewManager(NewSlidingWindow(standard, clk), NewSlidingWindow(multi, clk), m, log)
}

// WithMaxRetries overrides how many checks Wait performs
func (m *Manager) WithMaxRetries(n int) *Manager {
	m.maxRetries = n
	return m
}

// CategoryFor classifies an endpoint path
func CategoryFor(path string) Category {
	if strings.Contains(path, "/multi/") || strings.Contains(path, "/positions/exit") {
		return CategoryMultiOrder
	}
	return CategoryStandard
}

// ForEndpoint returns the limiter for path
func (m *Manager) ForEndpoint(path string) Limiter {
	return m.limiters[CategoryFor(path)]
}

// ForCategory returns the limiter for a category name
func (m *Manager) ForCategory(category Category) (Limiter, error) {
	l, ok := m.limiters[Category(strings.ToUpper(string(category)))]
	if !ok {
		return nil, fmt.Errorf("unknown rate limit category: %s", category)
	}
	return l, nil
}

// Check checks the limiter for path
func (m *Manager) Check(ctx context.Context, path string) Status {
	return m.ForEndpoint(path).Check(ctx)
}

// Wait blocks until a slot for path is reserved or the retries run out.
// A nil return means the call is already counted.
func (m *Manager) Wait(ctx context.Context, path string) error {
	limiter := m.ForEndpoint(path)
	err := limiter.WaitAndRetry(ctx, m.maxRetries)

	var exceeded *ExceededError
	if errors.As(err, &exceeded) {
		if m.metrics != nil {
			m.metrics.RateLimitRejections.WithLabelValues(string(exceeded.Category), string(exceeded.Status)).Inc()
		}
		m.logger.WithFields(map[string]interface{}{
			"path":     path,
			"category": exceeded.Category,
			"status":   exceeded.Status,
		}).Warn("Outbound call rejected by rate limiter")
	}
	return err
}

// Record counts a call against path's limiter without checking it
func (m *Manager) Record(ctx context.Context, path string) {
	m.ForEndpoint(path).Record(ctx)
}

// CheckBatch validates a batch size against the multi-order profile
func (m *Manager) CheckBatch(orderCount int) error {
	return m.limiters[CategoryMultiOrder].Profile().CheckBatch(orderCount)
}

// Usage reports every category
func (m *Manager) Usage(ctx context.Context) map[Category]Usage {
	out := make(map[Category]Usage, len(m.limiters))
	for c, l := range m.limiters {
		out[c] = l.Usage(ctx)
	}
	return out
}

// ResetAll clears every limiter
func (m *Manager) ResetAll(ctx context.Context) {
	for _, l := range m.limiters {
		l.Reset(ctx)
	}
	m.logger.Info("All rate limiters reset")
}
