package scanner

import (
	"testing"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() evalInput {
	return evalInput{
		Venue: "kalshi",
		City:  domain.City{Key: "nyc"},
		Range: domain.Range{Type: domain.RangeBounded},
		Side:  domain.SideYes,
		Forecast: &domain.Result{
			StdDevC:           1.0,
			HoursToResolution: 12,
			Sources: []domain.SourceSnapshot{
				{Source: "nws", Corrected: 70},
				{Source: "owm", Corrected: 71},
			},
		},
		Ask: 0.40, Bid: 0.35, Spread: 0.05, Volume: 1000,
		CorrectedProb: 0.55, EdgePct: 15,
	}
}

func baseConfig() Config {
	cfg := DefaultConfig()
	cfg.TradingEnabled = map[domain.Venue]bool{"kalshi": true}
	return cfg
}

func TestRunFilters_ApprovesCleanInput(t *testing.T) {
	res := runFilters(baseConfig(), baseInput())
	assert.True(t, res.approved)
	assert.Empty(t, res.reasons)
}

func TestRunFilters_VenueDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.TradingEnabled["kalshi"] = false
	res := runFilters(cfg, baseInput())
	require.False(t, res.approved)
	assert.Contains(t, res.reasons, ReasonVenueDisabled)
}

func TestRunFilters_EdgeBelowMinWaivedByCalibrationBypass(t *testing.T) {
	cfg := baseConfig()
	in := baseInput()
	in.EdgePct = 1 // below MinEdgePct=5
	in.CalBucketOK = true
	in.CalBucket = calibration.MarketCalibrationEntry{EmpiricalWinRate: 0.50, N: 40, TrueEdge: 0.10}

	res := runFilters(cfg, in)
	assert.True(t, res.approved)
	assert.True(t, res.calBypass)
	assert.Contains(t, res.reasons, ReasonEdgeBelowMin)
}

func TestRunFilters_EdgeBelowMinNotWaivedWithoutSufficientSamples(t *testing.T) {
	cfg := baseConfig()
	in := baseInput()
	in.EdgePct = 1
	in.CalBucketOK = true
	in.CalBucket = calibration.MarketCalibrationEntry{EmpiricalWinRate: 0.50, N: 5, TrueEdge: 0.10}

	res := runFilters(cfg, in)
	assert.False(t, res.approved)
	assert.False(t, res.calBypass)
}

func TestRunFilters_ZeroVolumeBlocksEvenWithBypass(t *testing.T) {
	cfg := baseConfig()
	in := baseInput()
	in.Volume = 0
	in.CalBucketOK = true
	in.CalBucket = calibration.MarketCalibrationEntry{EmpiricalWinRate: 0.80, N: 100, TrueEdge: 0.30}
	in.EdgePct = 1

	res := runFilters(cfg, in)
	assert.False(t, res.approved, "zero volume is never waivable")
	assert.Contains(t, res.reasons, ReasonZeroVolume)
}

func TestRunFilters_MarketCalibrationBlock(t *testing.T) {
	cfg := baseConfig()
	in := baseInput()
	in.CalBucketOK = true
	in.CalBucket = calibration.MarketCalibrationEntry{EmpiricalWinRate: 0.10, N: 50, TrueEdge: -0.30}

	res := runFilters(cfg, in)
	assert.False(t, res.approved)
	assert.Contains(t, res.reasons, ReasonMarketCalBlock)
}

func TestRunFilters_PriceSanityRejectsExtremeAsk(t *testing.T) {
	cfg := baseConfig()
	in := baseInput()
	in.Ask = 0.99
	res := runFilters(cfg, in)
	assert.False(t, res.approved)
	assert.Contains(t, res.reasons, ReasonPriceSanity)
}
