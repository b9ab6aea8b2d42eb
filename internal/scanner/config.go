// Package scanner implements the Opportunity Scanner of spec.md §4.3: the
// 13-step filter chain, YES/NO candidate selection, the calibration-
// confirmation bypass, and the guaranteed-win detector.
package scanner

import "github.com/arourke/wxengine/internal/domain"

// Config holds the tunables spec §6's `entry`, `guaranteed_entry` and
// `calibration` sections expose.
type Config struct {
	YesMaxForecastDistance float64 // stddevs, default 3.0
	YesCandidateCount      int     // top-N evaluated per city/date, default 5

	MinEdgePct float64 // percentage points

	MaxSpread           float64
	MaxSpreadPct        float64
	MinAskPrice         float64
	MinNoAskPrice       float64
	MaxNoAskPrice       float64
	MinHoursToResolution float64
	MaxModelMarketRatio  float64
	MaxEnsembleSpreadC   float64
	MaxEnsembleSpreadF   float64
	MaxMarketDivergenceC float64
	MaxStdRangeRatio     float64

	ObservationBufferC float64
	ObservationBufferF float64

	CalMinTradeEdge float64
	CalConfirmsMinN int
	CalBlocksMinN   int

	TradingEnabled map[domain.Venue]bool
	BlockedCities  map[domain.Venue]map[string]bool

	GWEnabled                bool
	GWMinAsk                 float64
	GWMaxAsk                 float64
	GWMinAskDualConfirmed    float64
	GWMinMarginCents         float64
	GWRequireDualConfirmation bool
	GWMetarOnlyMinGapC       float64
	GWMetarOnlyMinGapF       float64
	GWMetarOnlyMinGapDualC   float64 // wider gap for dual-station NWS-priority cities
	GWMinBid                 float64
}

// DefaultConfig mirrors the literal defaults spec.md names.
func DefaultConfig() Config {
	return Config{
		YesMaxForecastDistance: 3.0,
		YesCandidateCount:      5,
		MinEdgePct:             5.0,
		MaxSpread:              0.05,
		MaxSpreadPct:           0.20,
		MinAskPrice:            0.02,
		MinNoAskPrice:          0.02,
		MaxNoAskPrice:          0.95,
		MinHoursToResolution:   1.0,
		MaxModelMarketRatio:    2.0,
		MaxEnsembleSpreadC:     4.0,
		MaxEnsembleSpreadF:     7.0,
		MaxMarketDivergenceC:   2.0,
		MaxStdRangeRatio:       2.0,
		ObservationBufferC:     0.5,
		ObservationBufferF:     1.0,
		CalMinTradeEdge:        3.0,
		CalConfirmsMinN:        30,
		CalBlocksMinN:          30,
		TradingEnabled:         map[domain.Venue]bool{},
		BlockedCities:          map[domain.Venue]map[string]bool{},
		GWEnabled:              true,
		GWMinAsk:               0.02,
		GWMaxAsk:               0.95,
		GWMinAskDualConfirmed:  0.02,
		GWMinMarginCents:       0.05,
		GWRequireDualConfirmation: true,
		GWMetarOnlyMinGapC:     0.5,
		GWMetarOnlyMinGapF:     1.0,
		GWMetarOnlyMinGapDualC: 0.8,
		GWMinBid:               0.05,
	}
}
