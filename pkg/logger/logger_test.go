package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &e), line)
		out = append(out, e)
	}
	return out
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestNewWithWriter_LevelIsPerLogger(t *testing.T) {
	var quiet, loud bytes.Buffer
	q := NewWithWriter(&quiet, "error")
	l := NewWithWriter(&loud, "debug")

	q.Info("dropped")
	l.Debug("kept")

	assert.Empty(t, quiet.String())
	got := entries(t, &loud)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0]["message"])
	assert.Equal(t, "debug", got[0]["level"])
	assert.Contains(t, got[0], "time")
}

func TestDomainFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").
		WithComponent("multi_order").
		WithBroker("UPSTOX").
		WithOrder("ORD-1")

	log.WithError(errors.New("venue timeout")).Warn("Placement failed")
	log.WithFields(map[string]interface{}{"slice": 2}).Info("Slice placed")

	got := entries(t, &buf)
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, "multi_order", e[FieldComponent])
		assert.Equal(t, "UPSTOX", e[FieldBroker])
		assert.Equal(t, "ORD-1", e[FieldOrderID])
	}
	assert.Equal(t, "venue timeout", got[0]["error"])
	assert.Equal(t, float64(2), got[1]["slice"])
}

func TestDerivedLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, "info")
	_ = base.WithOrder("ORD-1")

	base.Info("plain")

	got := entries(t, &buf)
	require.Len(t, got, 1)
	assert.NotContains(t, got[0], FieldOrderID)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().WithComponent("x").WithOrder("o").Error("discarded")
	})
}
