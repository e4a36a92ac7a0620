package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := NewZapNotifier(zap.New(core))

	n.Notify(context.Background(), "Focus session started", "Social")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Focus session started", entries[0].Message)
	assert.Equal(t, "notify", entries[0].LoggerName)
	assert.Equal(t, "Social", entries[0].ContextMap()["message"])
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := SystemClock{}.Now()
	assert.False(t, got.Before(before))
}
