// Package calibration builds the in-memory calibration views described in
// spec.md §3 and §4.1: per-source and per-city bias/MAE tables, source
// weights, empirical stddevs and CDFs, and market/model calibration
// buckets, all refreshed on a TTL from two history tables.
package calibration

import (
	"time"

	"github.com/arourke/wxengine/internal/domain"
)

// LeadBucket is the hours-to-resolution bucket used throughout the bias
// cascade and the market-calibration key (spec §4.1 step 7).
type LeadBucket string

const (
	LeadNear     LeadBucket = "near"     // 0-6h
	LeadSameDay  LeadBucket = "same-day" // 7-24h
	LeadNextDay  LeadBucket = "next-day" // 25-48h
	LeadMultiDay LeadBucket = "multi-day" // 49h+
)

// BucketForHours maps hours-to-resolution to its lead bucket.
func BucketForHours(hours float64) LeadBucket {
	switch {
	case hours <= 6:
		return LeadNear
	case hours <= 24:
		return LeadSameDay
	case hours <= 48:
		return LeadNextDay
	default:
		return LeadMultiDay
	}
}

// MarketCalibrationEntry is one (venue, rangeType, leadBucket,
// priceBucket[, city]) bucket value.
type MarketCalibrationEntry struct {
	EmpiricalWinRate float64
	N                int
	TrueEdge         float64 // winRate - mean ask of the bucket's resolved opportunities (not the bucket's nominal midpoint)
}

// ModelCalibrationEntry is one (city?, rangeType, modelProbBucket) bucket
// value: the correction-ratio table (spec §4.1 step 10).
type ModelCalibrationEntry struct {
	CorrectionRatio float64
	N               int
}

// Tables is one immutable calibration snapshot. Readers hold a reference
// for the duration of one evaluation; the store publishes a new Tables
// behind an atomic pointer on refresh (spec §9 "Calibration snapshot
// atomicity").
type Tables struct {
	// Biases: key "source:unit" -> mean(error).
	Biases map[string]float64
	// CityBiases: key "city:source:unit" -> mean(error).
	CityBiases map[string]float64
	// LeadBiases: key "source:unit:bucket" -> mean(error), n>=3 only.
	LeadBiases map[string]float64
	// CityLeadBiases: key "city:source:unit:bucket" -> mean(error), n>=3 only.
	CityLeadBiases map[string]float64

	// PooledResidualStdDev: key unit -> sqrt(sum((e-bias)^2)/(n-1)).
	PooledResidualStdDev map[domain.Unit]float64
	// CityStdDevs: key city -> per-city empirical residual stddev
	// (bias-subtracted), falling back to pooled/tier downstream.
	CityStdDevs map[string]float64

	// CityActiveSources: city -> set of source names not demoted.
	CityActiveSources map[string]map[string]bool
	// CitySoftDemoted: city -> set of sources kept active at a capped
	// weight (spec §4.1 step 4 soft demotion).
	CitySoftDemoted map[string]map[string]bool
	// CitySourceWeights: city -> source -> inverse-MAE weight, normalized
	// to sum 1 (spec §4.1 step 8).
	CitySourceWeights map[string]map[string]float64
	// CitySourceMAE: city -> source -> residual MAE, used for eligibility
	// and the demotion cascade.
	CitySourceMAE map[string]map[string]float64
	// CityWeightedMAE: city -> sample-count-weighted MAE across active
	// sources (the city-eligibility metric, step 5).
	CityWeightedMAE map[string]float64
	CityWeightedN   map[string]int

	// CityEmpiricalCDF: city -> 19-point percentile table (5,10,...,95)
	// of signed error in the city's native unit.
	CityEmpiricalCDF map[string][]float64

	// MarketCalibration: key "venue|rangeType|leadBucket|priceBucket[|city]".
	MarketCalibration map[string]MarketCalibrationEntry
	// ModelCalibration: key "[city|]rangeType|probBucket".
	ModelCalibration map[string]ModelCalibrationEntry

	ComputedAt time.Time
}

// SourceKey builds the "source:unit" lookup key for Biases.
func SourceKey(source string, unit domain.Unit) string { return key2(source, string(unit)) }

// CityKey builds the "city:source:unit" lookup key for CityBiases.
func CityKey(city, source string, unit domain.Unit) string { return key3(city, source, string(unit)) }

// LeadKey builds the "source:unit:bucket" lookup key for LeadBiases.
func LeadKey(source string, unit domain.Unit, bucket LeadBucket) string {
	return key3(source, string(unit), string(bucket))
}

// CityLeadKey builds the "city:source:unit:bucket" lookup key for
// CityLeadBiases.
func CityLeadKey(city, source string, unit domain.Unit, bucket LeadBucket) string {
	return key4(city, source, string(unit), string(bucket))
}

// Bias resolves the four-level cascade (city+source+lead -> city+source ->
// source+lead -> source), taking the most specific entry present — every
// map here is only ever populated with entries meeting the n>=3 sample
// floor, so presence alone is the eligibility check (spec §4.1 step 7).
func (t *Tables) Bias(city, source string, unit domain.Unit, bucket LeadBucket) (float64, bool) {
	if b, ok := t.CityLeadBiases[CityLeadKey(city, source, unit, bucket)]; ok {
		return b, true
	}
	if b, ok := t.CityBiases[CityKey(city, source, unit)]; ok {
		return b, true
	}
	if b, ok := t.LeadBiases[LeadKey(source, unit, bucket)]; ok {
		return b, true
	}
	if b, ok := t.Biases[SourceKey(source, unit)]; ok {
		return b, true
	}
	return 0, false
}

// empty returns a Tables with every map initialized but nothing populated
// — the "fail as empty, not as a block" policy from spec §4.1.
func empty() *Tables {
	return &Tables{
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
		MarketCalibration:    map[string]MarketCalibrationEntry{},
		ModelCalibration:     map[string]ModelCalibrationEntry{},
		ComputedAt:           time.Now(),
	}
}
