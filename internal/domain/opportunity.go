package domain

import "time"

// Side is which outcome of a range an opportunity evaluates.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// EntryReason labels why an opportunity was approved. Only meaningful when
// Approved is true; filtered opportunities instead carry a FilterReason
// string.
type EntryReason string

const (
	EntryNormal             EntryReason = "normal"
	EntryCalConfirms        EntryReason = "cal_confirms"
	EntryGuaranteedWin      EntryReason = "guaranteed_win"
	EntryGuaranteedWinMetar EntryReason = "guaranteed_win_metar_only"
)

// Opportunity is one per evaluation: an immutable log record. Composite
// identity is (City, Date, Range.TokenID, Side, Venue, SnapshotAt). Written
// exactly once; never mutated after construction. Re-architected per the
// design note on the source's ad-hoc field bags as a tagged variant: this
// struct carries every field common to both sides and both entry shapes;
// side-specific and entry-reason-specific data live in the YesOpportunity /
// NoOpportunity / GuaranteedWinEntry extensions below, addressable from the
// core record by pointer (nil when not applicable).
type Opportunity struct {
	ID         string
	City       string
	Date       string
	Range      Range
	Side       Side
	Venue      Venue
	SnapshotAt time.Time

	RawProbability       float64
	CorrectedProbability float64
	CorrectionRatio      float64
	EdgePct              float64
	KellyFraction        float64

	Approved     bool
	EntryReason  EntryReason
	FilterReason string // empty when Approved

	CalibrationBucketKey string

	// ML feature columns, persisted verbatim (spec §6 persistence
	// interface, opportunities table).
	ForecastToNearEdge      float64
	ForecastToFarEdge       float64
	ForecastInRange         bool
	SourceDisagreementDeg   float64
	MarketImpliedDivergence float64

	Yes *YesOpportunity
	No  *NoOpportunity
	GW  *GuaranteedWinEntry

	TradeID string // set once a trade is created from this opportunity
}

// YesOpportunity carries fields only meaningful for a YES evaluation.
type YesOpportunity struct {
	Ask                float64
	StdDevToRangeRatio float64
	ObservationBlocked bool
}

// NoOpportunity carries fields only meaningful for a NO evaluation.
type NoOpportunity struct {
	Ask                float64 // derived: 1 - yesBid
	Bid                float64 // derived: 1 - yesAsk
	AdjacentYesBlocked bool
}

// GuaranteedWinEntry carries the observation-derived fields for a
// deterministic entry (spec §4.3 guaranteed-win detector).
type GuaranteedWinEntry struct {
	ObservedHighF  float64
	DualConfirmed  bool
	MetarOnly      bool
	GapF           float64
	PrimaryStation string
}

// IsFinite reports whether every probability/edge field on the opportunity
// is a finite number, per spec §7's non-finite policy.
func (o Opportunity) IsFinite() bool {
	return IsFinite(o.RawProbability) && IsFinite(o.CorrectedProbability) &&
		IsFinite(o.EdgePct) && IsFinite(o.KellyFraction)
}
