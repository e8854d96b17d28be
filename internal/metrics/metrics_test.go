package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := NewIsolated()

	m.OrdersTotal.WithLabelValues("UPSTOX", "acknowledged").Inc()
	m.OrdersTotal.WithLabelValues("UPSTOX", "acknowledged").Inc()
	m.RateLimitRejections.WithLabelValues("STANDARD", "LIMIT_EXCEEDED_SECOND").Inc()
	m.ObserveBroker("UPSTOX", "place", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `vega_orders_total{broker="UPSTOX",outcome="acknowledged"} 2`)
	assert.Contains(t, body, `vega_ratelimit_rejections_total{category="STANDARD",window="LIMIT_EXCEEDED_SECOND"} 1`)
	assert.Contains(t, body, "vega_broker_call_duration_seconds_count")
}

func TestIsolatedRegistries(t *testing.T) {
	// Two sets must not collide on registration
	assert.NotPanics(t, func() {
		NewIsolated()
		NewIsolated()
	})
}
