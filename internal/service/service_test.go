package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunWatchdogPublishesStatusUntilCancelled(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunWatchdog(ctx, 10*time.Millisecond, func() string {
			calls.Add(1)
			return "overall OK"
		})
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog loop did not stop")
	}
}
