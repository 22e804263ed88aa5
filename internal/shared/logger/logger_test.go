package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("creates with default config", func(t *testing.T) {
		l, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, l)
	})

	t.Run("creates with custom level", func(t *testing.T) {
		l, err := New(&Config{Level: "debug", Format: "json"})
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("creates console format logger", func(t *testing.T) {
		l, err := New(&Config{Level: "info", Format: "console"})
		require.NoError(t, err)
		assert.NotNil(t, l)
		assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}
