package calibration

import (
	"testing"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accRow(city, source, unit, lead string, err float64) ports.AccuracyRow {
	return ports.AccuracyRow{City: city, Source: source, Unit: domain.Unit(unit), Lead: lead, Error: err}
}

func TestBuild_BiasIsMeanError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 2
	rows := []ports.AccuracyRow{
		accRow("nyc", "nws", "F", "same-day", 1.0),
		accRow("nyc", "nws", "F", "same-day", 3.0),
	}
	tables := build(cfg, rows, nil)

	bias, ok := tables.Biases[SourceKey("nws", domain.UnitFahrenheit)]
	require.True(t, ok)
	assert.InDelta(t, 2.0, bias, 1e-9)
}

func TestBuild_BelowMinSamplesIsNotPopulated(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 3
	rows := []ports.AccuracyRow{
		accRow("nyc", "nws", "F", "same-day", 1.0),
		accRow("nyc", "nws", "F", "same-day", 3.0),
	}
	tables := build(cfg, rows, nil)

	_, ok := tables.Biases[SourceKey("nws", domain.UnitFahrenheit)]
	assert.False(t, ok)
}

func TestBuild_DemotesHighMAESource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 2
	cfg.MinActiveSources = 1
	var rows []ports.AccuracyRow
	for i := 0; i < 5; i++ {
		sign := 1.0 // alternate signs so the residual MAE (bias removed) is non-zero
		if i%2 == 1 {
			sign = -1.0
		}
		rows = append(rows, accRow("nyc", "good", "F", "same-day", 0.2*sign))
		rows = append(rows, accRow("nyc", "bad", "F", "same-day", 9.0*sign))
	}
	tables := build(cfg, rows, nil)

	assert.True(t, tables.CityActiveSources["nyc"]["good"])
	assert.False(t, tables.CityActiveSources["nyc"]["bad"])
}

func TestBuild_SoftDemotesWhenTooFewSourcesWouldRemainActive(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 2
	cfg.MinActiveSources = 2
	var rows []ports.AccuracyRow
	for i := 0; i < 5; i++ {
		sign := 1.0 // alternate signs so the residual MAE (bias removed) is non-zero
		if i%2 == 1 {
			sign = -1.0
		}
		rows = append(rows, accRow("nyc", "good", "F", "same-day", 0.2*sign))
		rows = append(rows, accRow("nyc", "bad", "F", "same-day", 9.0*sign))
	}
	tables := build(cfg, rows, nil)

	assert.True(t, tables.CityActiveSources["nyc"]["bad"])
	assert.True(t, tables.CitySoftDemoted["nyc"]["bad"])
}

func TestBuild_SourceWeightsNormalizeToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightMinSamples = 2
	var rows []ports.AccuracyRow
	for i := 0; i < 5; i++ {
		sign := 1.0 // alternate signs so the residual MAE (bias removed) is non-zero
		if i%2 == 1 {
			sign = -1.0
		}
		rows = append(rows, accRow("nyc", "a", "F", "same-day", 0.5*sign))
		rows = append(rows, accRow("nyc", "b", "F", "same-day", 1.0*sign))
	}
	tables := build(cfg, rows, nil)

	var total float64
	for _, w := range tables.CitySourceWeights["nyc"] {
		total += w
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.Greater(t, tables.CitySourceWeights["nyc"]["a"], tables.CitySourceWeights["nyc"]["b"])
}

func TestBuild_ModelCalibrationNeedsPooledMinN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelCalPooledMinN = 3
	var resolved []ports.ResolvedOpportunity
	for i := 0; i < 3; i++ {
		resolved = append(resolved, ports.ResolvedOpportunity{
			Opp: domain.Opportunity{
				City: "nyc", Range: domain.Range{Type: domain.RangeBounded},
				RawProbability: 0.6,
			},
			Outcome: true,
		})
	}
	tables := build(cfg, nil, resolved)

	key := ModelCalKeyPooled(domain.RangeBounded, 0.6)
	entry, ok := tables.ModelCalibration[key]
	require.True(t, ok)
	assert.InDelta(t, 1.0/0.6, entry.CorrectionRatio, 1e-9)
}

func TestPriceBucket_BucketsIntoFiveCentWidths(t *testing.T) {
	assert.Equal(t, "0-5c", priceBucket(0.03))
	assert.Equal(t, "50-55c", priceBucket(0.52))
	assert.Equal(t, "55c+", priceBucket(0.90))
}

func TestProbBucket_CapsAt75Plus(t *testing.T) {
	assert.Equal(t, "0-5", probBucket(0.01))
	assert.Equal(t, "75+", probBucket(0.80))
}

func TestApplySoftDemotionCap_RedistributesOverflow(t *testing.T) {
	weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}
	soft := map[string]bool{"c": true}
	applySoftDemotionCap(weights, soft, 0.1)

	assert.InDelta(t, 0.1, weights["c"], 1e-9)
	// 0.1 overflow redistributed proportionally across a and b.
	assert.InDelta(t, 0.5+0.1*(0.5/0.8), weights["a"], 1e-9)
	assert.InDelta(t, 0.3+0.1*(0.3/0.8), weights["b"], 1e-9)
}

func TestResidualStdDev_SingleSampleIsZero(t *testing.T) {
	assert.Equal(t, 0.0, residualStdDev([]float64{4.0}, 0))
}

func TestPercentileTable_Has19PointsAscending(t *testing.T) {
	residuals := make([]float64, 100)
	for i := range residuals {
		residuals[i] = float64(i)
	}
	table := percentileTable(residuals)
	require.Len(t, table, 19)
	for i := 1; i < len(table); i++ {
		assert.GreaterOrEqual(t, table[i], table[i-1])
	}
}
