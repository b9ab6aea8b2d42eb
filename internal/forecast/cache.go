package forecast

import (
	"context"
	"sync"
	"time"

	"github.com/arourke/wxengine/internal/ports"
	"golang.org/x/sync/singleflight"
)

// cacheEntry stores a multi-day forecast set for one source:city key, so
// repeated requests for other dates of the same city do not refetch
// (spec §4.2).
type cacheEntry struct {
	days      []ports.DailyHigh
	fetchedAt time.Time
}

// sourceCache is the per-source "first caller fetches, others wait for the
// same result" cache spec §9 describes: a mapping from cache key to either
// a completed value with fetchedAt, or a pending fetch other callers await.
// Never two concurrent in-flight fetches for the same key.
type sourceCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]cacheEntry

	group singleflight.Group
}

func newSourceCache(ttl time.Duration) *sourceCache {
	return &sourceCache{ttl: ttl, entries: map[string]cacheEntry{}}
}

// get returns the cached multi-day set for key, fetching via fn if absent
// or expired. fn is only ever invoked once per key even under concurrent
// callers, via singleflight.
func (c *sourceCache) get(ctx context.Context, key string, fn func(ctx context.Context) ([]ports.DailyHigh, error)) ([]ports.DailyHigh, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.days, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && time.Since(entry.fetchedAt) < c.ttl {
			return entry.days, nil
		}
		days, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = cacheEntry{days: days, fetchedAt: time.Now()}
		c.mu.Unlock()
		return days, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]ports.DailyHigh), nil
}
