package calibration

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/arourke/wxengine/internal/ports"
	"golang.org/x/sync/singleflight"
)

// Store is the CalibrationStore described in spec.md §4.1: a TTL-refreshed,
// read-mostly snapshot of bias/MAE/weight/calibration tables. Refresh is
// single-flight — concurrent callers during a refresh block on its result
// rather than each triggering their own fetch, and never observe a torn
// snapshot mixing old and new tables.
type Store struct {
	source ports.CalibrationSource
	cfg    Config
	ttl    time.Duration
	window int // rolling window, days

	snapshot atomic.Pointer[Tables]
	fetchedAt atomic.Int64 // unix nanos

	group singleflight.Group
}

// NewStore constructs a Store with an empty initial snapshot — the first
// call to Tables() triggers the first refresh.
func NewStore(source ports.CalibrationSource, cfg Config, ttl time.Duration, windowDays int) *Store {
	s := &Store{source: source, cfg: cfg, ttl: ttl, window: windowDays}
	s.snapshot.Store(empty())
	return s
}

// Tables returns the current snapshot, refreshing first if the TTL has
// expired. On refresh failure, the prior snapshot is retained and the
// failure is logged — callers never see partial data (spec §4.1 failure
// policy).
func (s *Store) Tables(ctx context.Context) *Tables {
	last := s.fetchedAt.Load()
	if last != 0 && time.Since(time.Unix(0, last)) < s.ttl {
		return s.snapshot.Load()
	}

	v, _, _ := s.group.Do("refresh", func() (interface{}, error) {
		// Re-check under single-flight: another caller may have already
		// refreshed while this one was waiting to enter Do.
		if last := s.fetchedAt.Load(); last != 0 && time.Since(time.Unix(0, last)) < s.ttl {
			return s.snapshot.Load(), nil
		}
		return s.refresh(ctx), nil
	})
	return v.(*Tables)
}

// ForceRefresh bypasses the TTL check; used by tests.
func (s *Store) ForceRefresh(ctx context.Context) *Tables {
	v, _, _ := s.group.Do("refresh", func() (interface{}, error) {
		return s.refresh(ctx), nil
	})
	return v.(*Tables)
}

func (s *Store) refresh(ctx context.Context) *Tables {
	accuracy, err := s.source.FetchAccuracyRows(ctx, s.window)
	if err != nil {
		slog.Warn("calibration: accuracy fetch failed, retaining prior snapshot", "err", err)
		return s.snapshot.Load()
	}
	resolved, err := s.source.FetchResolvedOpportunities(ctx, s.window)
	if err != nil {
		slog.Warn("calibration: resolved-opportunity fetch failed, retaining prior snapshot", "err", err)
		return s.snapshot.Load()
	}

	tables := build(s.cfg, accuracy, resolved)
	s.snapshot.Store(tables)
	s.fetchedAt.Store(time.Now().UnixNano())
	return tables
}
