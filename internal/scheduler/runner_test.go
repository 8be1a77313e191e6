package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTicker struct {
	ticks atomic.Int32
}

func (c *countingTicker) Tick(context.Context) Summary {
	c.ticks.Add(1)
	return Summary{}
}

func TestNewRunnerRejectsInvalidSchedule(t *testing.T) {
	_, err := NewRunner(&countingTicker{}, "every minute", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestRunnerTicksUntilCancelled(t *testing.T) {
	ticker := &countingTicker{}
	runner, err := NewRunner(ticker, "@every 1s", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return ticker.ticks.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
}
