package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kvijay199428/VEGA-sub001/internal/metrics"
	"github.com/Kvijay199428/VEGA-sub001/pkg/clock"
	"github.com/Kvijay199428/VEGA-sub001/pkg/config"
	"github.com/Kvijay199428/VEGA-sub001/pkg/logger"
	"github.com/Kvijay199428/VEGA-sub001/pkg/redis"
)

func newManager(clk clock.Clock) *Manager {
	cfg := config.RateLimitConfig{
		Standard:   DefaultStandardLimits,
		MultiOrder: DefaultMultiOrderLimits,
	}
	return NewManagerFromConfig("upstox", cfg, redis.Disabled(), clk, metrics.NewIsolated(), logger.Nop())
}

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"/v2/order/place", CategoryStandard},
		{"/v2/order/multi/place", CategoryMultiOrder},
		{"/v2/order/multi/cancel", CategoryMultiOrder},
		{"/v2/order/positions/exit", CategoryMultiOrder},
		{"/v2/order/retrieve-all", CategoryStandard},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFor(tt.path))
		})
	}
}

func TestManager_SeparateBudgets(t *testing.T) {
	ctx := context.Background()
	m := newManager(clock.NewFake(t0))

	for i := 0; i < 4; i++ {
		m.Record(ctx, "/v2/order/multi/place")
	}

	assert.Equal(t, StatusExceededSecond, m.Check(ctx, "/v2/order/multi/place"))
	assert.Equal(t, StatusOK, m.Check(ctx, "/v2/order/place"))

	usage := m.Usage(ctx)
	assert.Equal(t, 4, usage[CategoryMultiOrder].PerSecond)
	assert.Equal(t, 0, usage[CategoryStandard].PerSecond)

	m.ResetAll(ctx)
	assert.Equal(t, StatusOK, m.Check(ctx, "/v2/order/multi/place"))
}

func TestManager_ForCategory(t *testing.T) {
	m := newManager(clock.NewFake(t0))

	l, err := m.ForCategory("multi_order")
	require.NoError(t, err)
	assert.Equal(t, CategoryMultiOrder, l.Profile().Category)

	_, err = m.ForCategory("BULK")
	assert.Error(t, err)
}

func TestManager_WaitRejects(t *testing.T) {
	ctx := context.Background()
	m := newManager(clock.NewFake(t0)).WithMaxRetries(1)

	for i := 0; i < 50; i++ {
		require.NoError(t, m.Wait(ctx, "/v2/order/place"), "call %d", i+1)
	}
	assert.Equal(t, 50, m.Usage(ctx)[CategoryStandard].PerSecond)

	err := m.Wait(ctx, "/v2/order/place")
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, 50, m.Usage(ctx)[CategoryStandard].PerSecond)
}

func TestManager_ConcurrentWaitNeverExceedsCeiling(t *testing.T) {
	ctx := context.Background()
	m := newManager(clock.NewFake(t0)).WithMaxRetries(1)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Wait(ctx, "/v2/order/place") == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), admitted.Load())
	assert.Equal(t, 50, m.Usage(ctx)[CategoryStandard].PerSecond)
}

func TestManager_CheckBatch(t *testing.T) {
	m := newManager(nil)
	assert.NoError(t, m.CheckBatch(10))
	assert.Error(t, m.CheckBatch(11))
}

func TestDistributed_DisabledRedisAllows(t *testing.T) {
	ctx := context.Background()
	store := redis.NewWindowLimiter(redis.Disabled(), "test")
	d := NewDistributed("upstox:STANDARD", StandardProfile(config.WindowLimits{PerSecond: 1, PerMinute: 1, Per30Min: 1}), store, clock.NewFake(t0), logger.Nop())

	d.Record(ctx)
	assert.Equal(t, StatusOK, d.Check(ctx))
	assert.Equal(t, StatusOK, d.Reserve(ctx))
	assert.Equal(t, 0, d.Usage(ctx).Per30Min)
	assert.NoError(t, d.WaitAndRetry(ctx, 1))
}

func TestClientLimiter(t *testing.T) {
	clk := clock.NewFake(t0)
	c := NewClientLimiter(120, 300, clk)

	// 120/min gives a burst of 30
	for i := 0; i < 30; i++ {
		require.True(t, c.Allow(ScopeUser, "u1"), "call %d", i+1)
	}
	assert.False(t, c.Allow(ScopeUser, "u1"))
	assert.True(t, c.Allow(ScopeUser, "u2"))

	// One token refills every 500ms
	clk.Advance(500 * time.Millisecond)
	assert.True(t, c.Allow(ScopeUser, "u1"))
	assert.False(t, c.Allow(ScopeUser, "u1"))

	assert.True(t, c.Allow(ScopeIP, "10.0.0.1"))
	assert.Equal(t, 3, c.Len())

	clk.Advance(11 * time.Minute)
	assert.True(t, c.Allow(ScopeIP, "10.0.0.2"))
	assert.Equal(t, 3, c.Evict())
	assert.Equal(t, 1, c.Len())
}

func TestClientLimiter_DisabledScope(t *testing.T) {
	c := NewClientLimiter(0, 1, clock.NewFake(t0))
	for i := 0; i < 1000; i++ {
		require.True(t, c.Allow(ScopeUser, "u1"))
	}
	assert.True(t, c.Allow(ScopeIP, "1.1.1.1"))
	assert.False(t, c.Allow(ScopeIP, "1.1.1.1"))
}
