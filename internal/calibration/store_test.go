package calibration

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arourke/wxengine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	accuracy []ports.AccuracyRow
	resolved []ports.ResolvedOpportunity
	calls    atomic.Int32
	failNext bool
}

func (f *fakeSource) FetchAccuracyRows(ctx context.Context, windowDays int) ([]ports.AccuracyRow, error) {
	f.calls.Add(1)
	if f.failNext {
		return nil, errors.New("boom")
	}
	return f.accuracy, nil
}

func (f *fakeSource) FetchResolvedOpportunities(ctx context.Context, windowDays int) ([]ports.ResolvedOpportunity, error) {
	return f.resolved, nil
}

func TestStore_TablesTriggersRefreshOnFirstCall(t *testing.T) {
	src := &fakeSource{accuracy: []ports.AccuracyRow{accRow("nyc", "nws", "F", "same-day", 1.0)}}
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 1
	s := NewStore(src, cfg, time.Hour, 30)

	tables := s.Tables(context.Background())
	require.Equal(t, int32(1), src.calls.Load())
	_, ok := tables.Biases[SourceKey("nws", "F")]
	assert.True(t, ok)
}

func TestStore_TablesReusesSnapshotWithinTTL(t *testing.T) {
	src := &fakeSource{}
	s := NewStore(src, DefaultConfig(), time.Hour, 30)

	s.Tables(context.Background())
	s.Tables(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStore_RefreshFailureRetainsPriorSnapshot(t *testing.T) {
	src := &fakeSource{accuracy: []ports.AccuracyRow{accRow("nyc", "nws", "F", "same-day", 1.0)}}
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 1
	s := NewStore(src, cfg, 0, 30)

	first := s.Tables(context.Background())
	require.NotEmpty(t, first.Biases)

	src.failNext = true
	second := s.ForceRefresh(context.Background())
	assert.Equal(t, first, second)
}

func TestTables_BiasCascadePrefersMostSpecific(t *testing.T) {
	tables := empty()
	tables.Biases[SourceKey("nws", "F")] = 1.0
	tables.LeadBiases[LeadKey("nws", "F", LeadSameDay)] = 2.0
	tables.CityBiases[CityKey("nyc", "nws", "F")] = 3.0
	tables.CityLeadBiases[CityLeadKey("nyc", "nws", "F", LeadSameDay)] = 4.0

	b, ok := tables.Bias("nyc", "nws", "F", LeadSameDay)
	require.True(t, ok)
	assert.Equal(t, 4.0, b)

	b, ok = tables.Bias("other-city", "nws", "F", LeadNextDay)
	require.True(t, ok)
	assert.Equal(t, 1.0, b)

	_, ok = tables.Bias("other-city", "unknown-source", "F", LeadNextDay)
	assert.False(t, ok)
}

func TestBucketForHours_MapsToFourBuckets(t *testing.T) {
	assert.Equal(t, LeadNear, BucketForHours(3))
	assert.Equal(t, LeadSameDay, BucketForHours(20))
	assert.Equal(t, LeadNextDay, BucketForHours(30))
	assert.Equal(t, LeadMultiDay, BucketForHours(72))
}
