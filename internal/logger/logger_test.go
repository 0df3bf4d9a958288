package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func Test_NewLogger(t *testing.T) {
	t.Run("Debug level enabled when requested", func(t *testing.T) {
		l, err := NewLogger(&LoggerConfig{Debug: true})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zap.DebugLevel))
	})
	t.Run("Info level by default", func(t *testing.T) {
		l, err := NewLogger(&LoggerConfig{})
		require.NoError(t, err)
		assert.False(t, l.Core().Enabled(zap.DebugLevel))
		assert.True(t, l.Core().Enabled(zap.InfoLevel))
	})
}

func Test_ForService(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := ForService(zap.New(core), "alice-trader")

	l.Info("Claiming rewards")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "alice-trader", entry.ContextMap()["service"])
}
