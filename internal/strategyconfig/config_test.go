package strategyconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
meta:
  version: "2026.10"
  description: desk routing
fallback: upstox
strategies:
  - tag: nifty_scalper
    broker: zerodha
  - tag: swing_delivery
    broker: UPSTOX
users:
  - user_id: u1
    priority: [fyers, upstox]
capabilities:
  - broker: zerodha
    max_orders_per_batch: 1
    rate_limit_per_minute: 180
trading:
  maintenance_window:
    start: "00:00"
    end: "05:30"
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "UPSTOX", cfg.Fallback)
	assert.Equal(t, map[string]string{"nifty_scalper": "ZERODHA", "swing_delivery": "UPSTOX"}, cfg.StrategyBrokers())
	assert.Equal(t, []string{"FYERS", "UPSTOX"}, cfg.UserPriorities()["u1"])

	require.Len(t, cfg.Capabilities, 1)
	assert.Equal(t, "ZERODHA", cfg.Capabilities[0].Broker)
	require.NotNil(t, cfg.Capabilities[0].RateLimitPerMinute)
	assert.Equal(t, 180, *cfg.Capabilities[0].RateLimitPerMinute)
	assert.Nil(t, cfg.Capabilities[0].SupportsModify)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("strategies:\n  - tag: a\n    brokr: UPSTOX\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Strategies)
}

func TestLoadAndHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, data, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, sampleYAML, string(data))

	hash, err := Hash(cfg)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	// 동일 설정 → 동일 해시
	hash2, _ := Hash(cfg)
	assert.Equal(t, hash, hash2)

	snap, err := NewSnapshot(cfg, path)
	require.NoError(t, err)
	assert.Equal(t, hash, snap.ConfigHash)
	assert.Equal(t, "2026.10", snap.Version)
}

func TestValidate(t *testing.T) {
	one, five := 1, 5
	no := false

	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"strategy without broker", Config{Strategies: []StrategyRoute{{Tag: "a"}}}, "strategies[0].broker"},
		{"duplicate tag", Config{Strategies: []StrategyRoute{{Tag: "a", Broker: "X"}, {Tag: "a", Broker: "Y"}}}, "strategies[1].tag"},
		{"user without priority", Config{Users: []UserRoute{{UserID: "u1"}}}, "users[0].priority"},
		{"zero batch", Config{Capabilities: []CapabilityOverride{{Broker: "X", MaxOrdersPerBatch: new(int)}}}, "capabilities[0].max_orders_per_batch"},
		{"single-order venue batching", Config{Capabilities: []CapabilityOverride{{Broker: "X", SupportsMultiOrder: &no, MaxOrdersPerBatch: &five}}}, "capabilities[0].max_orders_per_batch"},
		{"bad window", Config{Trading: Trading{MaintenanceWindow: Window{Start: "5:30", End: "06:00"}}}, "trading.maintenance_window.start"},
		{"inverted window", Config{Trading: Trading{MaintenanceWindow: Window{Start: "06:00", End: "05:30"}}}, "trading.maintenance_window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.cfg)
			require.Error(t, err)

			var verr ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	ok := Config{Capabilities: []CapabilityOverride{{Broker: "X", SupportsMultiOrder: &no, MaxOrdersPerBatch: &one}}}
	assert.NoError(t, Validate(&ok))
}
