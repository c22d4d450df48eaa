package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.Debug(ctx, "dbg")
	log.Info(ctx, "inf", "user_id", "u1")
	log.Warn(ctx, "wrn")
	log.Error(ctx, "err")

	require.Equal(t, 4, logs.Len())

	entries := logs.FilterMessage("inf").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, "u1", entries[0].ContextMap()["user_id"])
}

func TestZapLogger_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := NewZapLogger(zap.New(core)).With("component", "storage")

	log.Info(context.Background(), "opened")

	entries := logs.FilterField(zap.String("component", "storage")).All()
	require.Len(t, entries, 1)
	require.Equal(t, "opened", entries[0].Message)
}

func TestNewProductionZapLogger_BadLevel(t *testing.T) {
	_, err := NewProductionZapLogger("chatty")
	require.Error(t, err)
}
