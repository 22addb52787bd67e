package lg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromZapLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).With(String("host", "localhost"))

	logger.Debug("debug line", Int("rc", 0))
	logger.Warn("warn line")
	logger.Error("error line", Err(errors.New("boom")))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "localhost", entries[0].ContextMap()["host"])
	assert.Equal(t, int64(0), entries[0].ContextMap()["rc"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestAttachFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := FromZap(zap.New(core))

	ctx := Attach(context.Background(), logger)
	FromContext(ctx).Info("attached")

	assert.Equal(t, 1, logs.FilterMessage("attached").Len())
}

func TestFromContextFallback(t *testing.T) {
	logger := FromContext(context.Background())
	_, ok := logger.(defaultLogger)
	assert.True(t, ok, "expected defaultLogger fallback, got %T", logger)
}

func TestFlatten(t *testing.T) {
	assert.Equal(t, "", flatten())
	out := flatten(String("user", "alice"), Int("attempts", 3))
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "3")
}

func TestNewConsole(t *testing.T) {
	logger := New(&Config{ServiceName: "test", Debug: true, Format: "console"})
	_, ok := logger.(*zapLogger)
	assert.True(t, ok)
}
