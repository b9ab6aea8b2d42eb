package scanner

import (
	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
)

// Filter reason strings, persisted verbatim on filtered opportunities.
const (
	ReasonVenueDisabled       = "venue_trading_disabled"
	ReasonVenueBlockedCity    = "venue_blocked_for_city"
	ReasonEnsembleSpread      = "ensemble_spread_exceeded"
	ReasonMarketDivergence    = "market_divergence_exceeded"
	ReasonStdRangeRatio       = "std_range_ratio_exceeded"
	ReasonObservationGate     = "observation_entry_gate"
	ReasonEdgeBelowMin        = "edge_below_min"
	ReasonSpreadExceeded      = "spread_exceeded"
	ReasonPriceSanity         = "price_sanity"
	ReasonHoursToResolution   = "hours_to_resolution"
	ReasonModelMarketRatio    = "model_market_ratio_exceeded"
	ReasonZeroVolume          = "zero_volume"
	ReasonMarketCalBlock      = "market_calibration_block"
	ReasonExistingPosition    = "existing_position"
	ReasonBetterCandidate     = "better_candidate_selected"
	ReasonNotBestNo           = "not_best_no_for_city_date"
	ReasonAdjacentNo          = "adjacent_no_protection"
)

// evalInput bundles everything the filter chain needs for one (city, date,
// range, side, venue) evaluation.
type evalInput struct {
	Venue domain.Venue
	City  domain.City
	Range domain.Range
	Side  domain.Side

	Forecast *domain.Result

	Ask, Bid, Spread, Volume float64

	CorrectedProb float64
	EdgePct       float64 // (CorrectedProb - ask) * 100

	MarketDivergenceC  float64 // only meaningful for YES
	StdRangeRatio      float64 // only meaningful for bounded YES
	ObservationBlocked bool    // only meaningful for bounded YES today

	CalBucket    calibration.MarketCalibrationEntry
	CalBucketOK  bool
	CalBucketKey string
}

// filterResult is the outcome of running the 13-step chain once.
type filterResult struct {
	reasons     []string // every filter that fired, in order 1-13
	approved    bool
	calBypass   bool
	kellyResize bool // calibration-confirmation resized a zero Kelly, see Scanner
}

// runFilters applies the 13-step chain in order, collecting every reason
// that fires before deciding (spec §4.3: "collect all reasons before
// deciding"). Filters 7 (edge) and 11 (model/market ratio) are waivable by
// the calibration-confirmation bypass; every other filter is a hard block.
func runFilters(cfg Config, in evalInput) filterResult {
	var reasons []string
	waivable := map[string]bool{}

	fire := func(reason string, waivableReason bool) {
		reasons = append(reasons, reason)
		if waivableReason {
			waivable[reason] = true
		}
	}

	// 1. Venue trading disabled for this venue.
	if !cfg.TradingEnabled[in.Venue] {
		fire(ReasonVenueDisabled, false)
	}

	// 2. Venue blocked for this city.
	if blocked := cfg.BlockedCities[in.Venue]; blocked != nil && blocked[in.City.Key] {
		fire(ReasonVenueBlockedCity, false)
	}

	// 3. Ensemble spread exceeds max.
	if in.Forecast != nil && in.Forecast.StdDevC > 0 {
		spreadC := ensembleSpreadC(in.Forecast)
		if spreadC > cfg.MaxEnsembleSpreadC {
			fire(ReasonEnsembleSpread, false)
		}
	}

	// 4. Market-implied mean divergence, YES-only.
	if in.Side == domain.SideYes && in.MarketDivergenceC > cfg.MaxMarketDivergenceC {
		fire(ReasonMarketDivergence, false)
	}

	// 5. Stddev-to-range-width ratio, bounded YES only.
	if in.Side == domain.SideYes && in.Range.Type == domain.RangeBounded && in.StdRangeRatio > cfg.MaxStdRangeRatio {
		fire(ReasonStdRangeRatio, false)
	}

	// 6. Observation entry gate, bounded YES today.
	if in.Side == domain.SideYes && in.Range.Type == domain.RangeBounded && in.ObservationBlocked {
		fire(ReasonObservationGate, false)
	}

	// 7. Edge threshold — waivable by calibration bypass.
	if in.EdgePct < cfg.MinEdgePct {
		fire(ReasonEdgeBelowMin, true)
	}

	// 8. Spread absolute / percentage.
	if in.Spread > cfg.MaxSpread {
		fire(ReasonSpreadExceeded, false)
	} else if in.Ask > 0 && in.Spread/in.Ask > cfg.MaxSpreadPct {
		fire(ReasonSpreadExceeded, false)
	}

	// 9. Price sanity.
	if in.Ask <= 0 || in.Ask >= 0.97 {
		fire(ReasonPriceSanity, false)
	} else if in.Side == domain.SideYes && in.Ask < cfg.MinAskPrice {
		fire(ReasonPriceSanity, false)
	} else if in.Side == domain.SideNo && (in.Ask < cfg.MinNoAskPrice || in.Ask > cfg.MaxNoAskPrice) {
		fire(ReasonPriceSanity, false)
	}

	// 10. Hours-to-resolution.
	if in.Forecast == nil || in.Forecast.HoursToResolution <= 0 || in.Forecast.HoursToResolution < cfg.MinHoursToResolution {
		fire(ReasonHoursToResolution, false)
	}

	// 11. Model-vs-market ratio — waivable by calibration bypass.
	if in.Ask > 0 && in.CorrectedProb > cfg.MaxModelMarketRatio*in.Ask {
		fire(ReasonModelMarketRatio, true)
	}

	// 12. Zero market volume.
	if in.Volume <= 0 {
		fire(ReasonZeroVolume, false)
	}

	// 13. Market-calibration block.
	if in.CalBucketOK && in.CalBucket.N >= cfg.CalBlocksMinN && in.CalBucket.EmpiricalWinRate < in.Ask {
		fire(ReasonMarketCalBlock, false)
	}

	bypass := calibrationBypasses(cfg, in)

	blocked := false
	for _, r := range reasons {
		if waivable[r] && bypass {
			continue
		}
		blocked = true
	}

	return filterResult{
		reasons:   reasons,
		approved:  !blocked,
		calBypass: bypass,
	}
}

// calibrationBypasses implements spec §4.3's calibration-confirmation
// bypass: bucket n >= CAL_CONFIRMS_MIN_N, trueEdge > 0, and
// empiricalWinRate - ask >= CAL_MIN_TRADE_EDGE (in percentage points).
func calibrationBypasses(cfg Config, in evalInput) bool {
	if !in.CalBucketOK {
		return false
	}
	b := in.CalBucket
	if b.N < cfg.CalConfirmsMinN || b.TrueEdge <= 0 {
		return false
	}
	return (b.EmpiricalWinRate-in.Ask)*100 >= cfg.CalMinTradeEdge
}

func ensembleSpreadC(f *domain.Result) float64 {
	if f == nil || len(f.Sources) == 0 {
		return 0
	}
	var lo, hi float64
	first := true
	for _, s := range f.Sources {
		if s.Shadow {
			continue
		}
		if first {
			lo, hi = s.Corrected, s.Corrected
			first = false
			continue
		}
		if s.Corrected < lo {
			lo = s.Corrected
		}
		if s.Corrected > hi {
			hi = s.Corrected
		}
	}
	return domain.DeltaFToC(hi - lo)
}
