package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoop_SkipsTickWhenPreviousRunStillInFlight(t *testing.T) {
	var running atomic.Bool
	var calls atomic.Int32
	block := make(chan struct{})

	o := &Orchestrator{}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	done := make(chan struct{}, 1)
	go o.loop(ctx, "test", 10*time.Millisecond, &running, func(context.Context) {
		calls.Add(1)
		<-block
	}, done)

	time.Sleep(50 * time.Millisecond)
	inFlight := calls.Load() // calls made while the first run was still blocked
	close(block)
	<-done

	require.Equal(t, int32(1), inFlight, "a still-running tick must be skipped, not queued")
}

func TestLoop_StopsOnContextCancellation(t *testing.T) {
	var running atomic.Bool
	o := &Orchestrator{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{}, 1)
	go o.loop(ctx, "test", 5*time.Millisecond, &running, func(context.Context) {}, done)

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}
