package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevelFor(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, levelFor(Development))
	assert.Equal(t, zapcore.InfoLevel, levelFor(Production))
	assert.Equal(t, zapcore.DebugLevel, levelFor(""))
}

func TestNew_RejectsUnknownEnvironment(t *testing.T) {
	_, err := New(Config{Environment: "staging"})
	require.Error(t, err)
}

func TestZapLogger_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core)).With("txHash", "0xabc")

	l.Info("receipt mined", "block", 12)
	l.Debug("polling")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "receipt mined", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "0xabc", fields["txHash"])
	assert.EqualValues(t, 12, fields["block"])
}

func TestNewNop_DoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Warn("ignored", "k", "v")
	l.With("a", 1).Error("ignored")
}
