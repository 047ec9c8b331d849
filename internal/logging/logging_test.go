package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level  string
		expect zapcore.Level
	}{
		{level: "debug", expect: zapcore.DebugLevel},
		{level: "warn", expect: zapcore.WarnLevel},
		{level: "error", expect: zapcore.ErrorLevel},
		{level: "", expect: zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := New(tt.level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.expect))
			if tt.expect > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.expect-1))
			}
		})
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	for _, level := range []string{"bogus", "verbose", "3"} {
		t.Run(level, func(t *testing.T) {
			logger, err := New(level)
			assert.Error(t, err)
			assert.Nil(t, logger)
		})
	}
}
