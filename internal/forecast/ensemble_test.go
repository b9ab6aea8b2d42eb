package forecast

import (
	"testing"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimOutliers_DropsSingleWorstOffenderAbovethreshold(t *testing.T) {
	samples := []rawSample{
		{source: "a", tempF: 70},
		{source: "b", tempF: 71},
		{source: "c", tempF: 85}, // clear outlier
	}
	trimmed, dropped := trimOutliers(samples, 8.0)
	require.NotNil(t, dropped)
	assert.Equal(t, "c", dropped.source)
	assert.Len(t, trimmed, 2)
}

func TestTrimOutliers_NoTrimUnderThreeActiveSources(t *testing.T) {
	samples := []rawSample{
		{source: "a", tempF: 70},
		{source: "b", tempF: 90},
	}
	trimmed, dropped := trimOutliers(samples, 8.0)
	assert.Nil(t, dropped)
	assert.Len(t, trimmed, 2)
}

func TestTrimOutliers_NeverDropsShadowSources(t *testing.T) {
	samples := []rawSample{
		{source: "a", tempF: 70},
		{source: "b", tempF: 71},
		{source: "c", tempF: 72},
		{source: "shadow", tempF: 200, shadow: true},
	}
	trimmed, dropped := trimOutliers(samples, 8.0)
	assert.Nil(t, dropped)
	assert.Len(t, trimmed, 4)
}

func TestBiasCorrect_SubtractsConvertedBias(t *testing.T) {
	tables := emptyTablesForTest()
	tables.Biases[calibration.SourceKey("nws", domain.UnitCelsius)] = 1.0 // 1C bias
	samples := []rawSample{{source: "nws", tempF: 70}}

	out := biasCorrect(samples, tables, "nyc", domain.UnitCelsius, calibration.LeadSameDay)
	assert.InDelta(t, 70-domain.DeltaCToF(1.0), out[0].tempF, 1e-9)
}

func TestBiasCorrect_SkipsShadowSources(t *testing.T) {
	tables := emptyTablesForTest()
	tables.Biases[calibration.SourceKey("shadow", domain.UnitFahrenheit)] = 5.0
	samples := []rawSample{{source: "shadow", tempF: 70, shadow: true}}

	out := biasCorrect(samples, tables, "nyc", domain.UnitFahrenheit, calibration.LeadSameDay)
	assert.Equal(t, 70.0, out[0].tempF)
}

func TestWeightedAverage_UsesWeightsWhenFullyCovered(t *testing.T) {
	samples := []rawSample{{source: "a", tempF: 60}, {source: "b", tempF: 80}}
	weights := map[string]float64{"a": 0.75, "b": 0.25}

	avg, weighted := weightedAverage(samples, weights)
	assert.True(t, weighted)
	assert.InDelta(t, 65.0, avg, 1e-9)
}

func TestWeightedAverage_FallsBackToEqualWeightWhenUncovered(t *testing.T) {
	samples := []rawSample{{source: "a", tempF: 60}, {source: "b", tempF: 80}}
	weights := map[string]float64{"a": 1.0} // missing "b"

	avg, weighted := weightedAverage(samples, weights)
	assert.False(t, weighted)
	assert.InDelta(t, 70.0, avg, 1e-9)
}

func TestWeightedAverage_ExcludesShadowSources(t *testing.T) {
	samples := []rawSample{{source: "a", tempF: 60}, {source: "shadow", tempF: 200, shadow: true}}
	avg, _ := weightedAverage(samples, nil)
	assert.Equal(t, 60.0, avg)
}

func TestBoostedAverage_IncreasesGovSourceInfluence(t *testing.T) {
	samples := []rawSample{{source: "nws", tempF: 60}, {source: "other", tempF: 80}}
	weights := map[string]float64{"nws": 0.5, "other": 0.5}

	unboosted, _ := weightedAverage(samples, weights)
	boosted := boostedAverage(samples, weights, "nws", 2.0)
	assert.Less(t, boosted, unboosted) // nws is cooler, boosting it pulls the average down
}

func TestComposeStdDev_WidensForSpreadDualStationAndLeadTime(t *testing.T) {
	base := composeStdDev(1.0, 1.0, 24, false)
	withSpread := composeStdDev(1.0, 10.0, 24, false)
	withDual := composeStdDev(1.0, 1.0, 24, true)
	withLongLead := composeStdDev(1.0, 1.0, 96, false)

	assert.Greater(t, withSpread, base)
	assert.Greater(t, withDual, base)
	assert.Greater(t, withLongLead, base)
}

func TestComposeStdDev_NeverReturnsNonPositive(t *testing.T) {
	assert.Greater(t, composeStdDev(0, 0, 0, false), 0.0)
}

func TestSourceSpreadF_ExcludesShadowSources(t *testing.T) {
	samples := []rawSample{
		{source: "a", tempF: 68},
		{source: "b", tempF: 72},
		{source: "shadow", tempF: 200, shadow: true},
	}
	assert.Equal(t, 4.0, sourceSpreadF(samples))
}

func TestConfidenceFromSpread_Buckets(t *testing.T) {
	assert.Equal(t, domain.ConfidenceHigh, confidenceFromSpread(1.0))
	assert.Equal(t, domain.ConfidenceMedium, confidenceFromSpread(3.0))
	assert.Equal(t, domain.ConfidenceLow, confidenceFromSpread(8.0))
}

func emptyTablesForTest() *calibration.Tables {
	return &calibration.Tables{
		Biases:               map[string]float64{},
		CityBiases:           map[string]float64{},
		LeadBiases:           map[string]float64{},
		CityLeadBiases:       map[string]float64{},
		PooledResidualStdDev: map[domain.Unit]float64{},
		CityStdDevs:          map[string]float64{},
		CityActiveSources:    map[string]map[string]bool{},
		CitySoftDemoted:      map[string]map[string]bool{},
		CitySourceWeights:    map[string]map[string]float64{},
		CitySourceMAE:        map[string]map[string]float64{},
		CityWeightedMAE:      map[string]float64{},
		CityWeightedN:        map[string]int{},
		CityEmpiricalCDF:     map[string][]float64{},
		MarketCalibration:    map[string]calibration.MarketCalibrationEntry{},
		ModelCalibration:     map[string]calibration.ModelCalibrationEntry{},
	}
}
