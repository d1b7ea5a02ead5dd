package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapTelemetryLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	telemetry := NewZapTelemetry(zap.New(core))

	telemetry.Record(context.Background(), "dashboard.view.open", map[string]any{"view": "overview"})
	telemetry.Record(context.Background(), "dashboard.fetch.failed", map[string]any{"error": "timeout"})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "dashboard", entries[0].LoggerName)
	assert.Equal(t, "overview", entries[0].ContextMap()["view"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "timeout", entries[1].ContextMap()["error"])
}

func TestNilLoggerDiscards(t *testing.T) {
	assert.NotPanics(t, func() {
		NewZapTelemetry(nil).Record(context.Background(), "dashboard.view.open", nil)
	})
}
