package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_FormatsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core)).Named("backup")

	l.Info("run #%d started", 7)
	l.Warning("retrying %s", "UPLOAD")
	l.Success("run #%d finished", 7)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "run #7 started", entries[0].Message)
	assert.Equal(t, "backup", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "success", entries[2].ContextMap()["outcome"])
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetDefault(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	previous := Default()
	SetDefault(FromZap(zap.New(core)))
	defer SetDefault(previous)

	Info("hello %s", "world")
	Debug("filtered")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "hello world", logs.All()[0].Message)
}
