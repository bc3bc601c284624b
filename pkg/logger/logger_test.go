package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	l, err := New(Options{Level: "debug", Format: FormatText, Output: "stderr"})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = New(Options{})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = New(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Options{Format: "xml"})
	assert.Error(t, err)
}

func TestWithCustomer(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{Logger: zap.New(core)}).Named("session").WithCustomer("+911234567890", "conv-1")

	l.Info("item added")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "session", entry.LoggerName)
	fields := entry.ContextMap()
	assert.Equal(t, "+911234567890", fields["customer_id"])
	assert.Equal(t, "conv-1", fields["conversation_id"])
}
