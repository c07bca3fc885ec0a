// logger/logger_test.go
package logger

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLogger(level LogLevel) (*defaultLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &defaultLogger{logger: zap.New(core), logLevel: level}, logs
}

// TestParseLogLevelFromString verifies the configuration strings map onto the right levels.
func TestParseLogLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"LogLevelDebug", LogLevelDebug},
		{"LogLevelInfo", LogLevelInfo},
		{"LogLevelWarn", LogLevelWarn},
		{"LogLevelError", LogLevelError},
		{"LogLevelDPanic", LogLevelDPanic},
		{"LogLevelPanic", LogLevelPanic},
		{"LogLevelFatal", LogLevelFatal},
		{"verbose", LogLevelNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevelFromString(tt.input))
		})
	}
}

func TestDefaultLogger_SetLevel(t *testing.T) {
	dLogger := &defaultLogger{logger: zap.NewNop()}

	dLogger.SetLevel(LogLevelWarn)
	assert.Equal(t, LogLevelWarn, dLogger.GetLogLevel())
}

func TestDefaultLogger_With(t *testing.T) {
	dLogger, logs := newObservedLogger(LogLevelInfo)

	child := dLogger.With(zap.String("component", "coordinator"))
	require.IsType(t, &defaultLogger{}, child)
	child.Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "coordinator", logs.All()[0].ContextMap()["component"])
	assert.Equal(t, LogLevelInfo, child.GetLogLevel())
}

// TestDefaultLogger_LevelFiltering checks that messages below the configured level are dropped.
func TestDefaultLogger_LevelFiltering(t *testing.T) {
	levels := []struct {
		level    LogLevel
		expected int
	}{
		{LogLevelDebug, 4},
		{LogLevelInfo, 3},
		{LogLevelWarn, 2},
		{LogLevelError, 1},
		{LogLevelNone, 0},
	}

	for _, tc := range levels {
		t.Run(fmt.Sprintf("LogLevel %d", tc.level), func(t *testing.T) {
			dLogger, logs := newObservedLogger(tc.level)

			dLogger.Debug("debug")
			dLogger.Info("info")
			dLogger.Warn("warn")
			_ = dLogger.Error("error")

			assert.Equal(t, tc.expected, logs.Len())
		})
	}
}

func TestDefaultLogger_ErrorReturnsError(t *testing.T) {
	dLogger, logs := newObservedLogger(LogLevelInfo)

	err := dLogger.Error("queue is full", zap.Int("depth", 3))
	require.Error(t, err)
	assert.Equal(t, "queue is full", err.Error())
	assert.Equal(t, 1, logs.FilterMessage("queue is full").Len())
}

func TestDefaultLogger_LogCredentialOperation(t *testing.T) {
	dLogger, logs := newObservedLogger(LogLevelInfo)

	dLogger.LogCredentialOperation("operation_done", "refresh", "sync", time.Second, nil)
	dLogger.LogCredentialOperation("operation_done", "renew", "async", time.Second, errors.New("boom"))

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "refresh", entries[0].ContextMap()["operation"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestDefaultLogger_LogQueueEventIsDebugOnly(t *testing.T) {
	dLogger, logs := newObservedLogger(LogLevelInfo)
	dLogger.LogQueueEvent("call_queued", "id", 1, 1)
	assert.Equal(t, 0, logs.Len())

	dLogger.SetLevel(LogLevelDebug)
	dLogger.LogQueueEvent("call_queued", "id", 2, 2)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, uint64(2), logs.All()[0].ContextMap()["sequence"])
}

func TestLogLevelNoneIsDistinct(t *testing.T) {
	assert.NotEqual(t, LogLevelFatal, LogLevelNone)
	assert.Greater(t, LogLevelNone, LogLevelFatal)
	assert.Equal(t, LogLevelNone, ParseLogLevelFromString("bogus"))
	assert.Equal(t, LogLevelNone, NewNopLogger().GetLogLevel())
}

func TestConvertToZapLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, convertToZapLevel(LogLevelDebug))
	assert.Equal(t, zap.ErrorLevel, convertToZapLevel(LogLevelError))
	assert.Equal(t, zap.InfoLevel, convertToZapLevel(LogLevelNone))
}

func TestBuildLogger(t *testing.T) {
	log := BuildLogger(LogLevelWarn, LogOutputHumanReadable)
	require.NotNil(t, log)
	assert.Equal(t, LogLevelWarn, log.GetLogLevel())
}
