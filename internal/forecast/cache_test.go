package forecast

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arourke/wxengine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceCache_CachesWithinTTL(t *testing.T) {
	c := newSourceCache(time.Hour)
	var calls atomic.Int32
	fn := func(ctx context.Context) ([]ports.DailyHigh, error) {
		calls.Add(1)
		return []ports.DailyHigh{{Date: "2026-08-01", HighCanonical: 70}}, nil
	}

	_, err := c.get(context.Background(), "k", fn)
	require.NoError(t, err)
	_, err = c.get(context.Background(), "k", fn)
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
}

func TestSourceCache_RefetchesAfterTTLExpires(t *testing.T) {
	c := newSourceCache(time.Nanosecond)
	var calls atomic.Int32
	fn := func(ctx context.Context) ([]ports.DailyHigh, error) {
		calls.Add(1)
		return nil, nil
	}

	_, _ = c.get(context.Background(), "k", fn)
	time.Sleep(time.Millisecond)
	_, _ = c.get(context.Background(), "k", fn)

	assert.Equal(t, int32(2), calls.Load())
}

func TestSourceCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := newSourceCache(time.Hour)
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) ([]ports.DailyHigh, error) {
		calls.Add(1)
		<-release
		return []ports.DailyHigh{{Date: "2026-08-01", HighCanonical: 70}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.get(context.Background(), "shared", fn)
		}()
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}
