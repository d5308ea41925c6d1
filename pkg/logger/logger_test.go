package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	l := GetLogger()
	before := l.level.Level()
	defer l.level.SetLevel(before)

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, zapcore.WarnLevel, l.level.Level())

	assert.Error(t, SetLevel("chatty"))
	assert.Equal(t, zapcore.WarnLevel, l.level.Level())
}

func TestNewLogger_ReplacesGlobal(t *testing.T) {
	prev := GetLogger()
	defer func() { zapLogger = prev }()

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	l, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.Same(t, l, GetLogger())

	assert.NotPanics(t, func() {
		Info("rental status changed", "transaction_id", 1, "new_status", "LATE")
		Debug("not emitted at info")
	})
	assert.Panics(t, func() { Panic("boom") })
}
