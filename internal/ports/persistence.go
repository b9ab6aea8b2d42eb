package ports

import (
	"context"
	"time"

	"github.com/arourke/wxengine/internal/domain"
)

// TradeStore is the trades table: one row per position, unique key
// (city, date, range, side, venue) among non-closed rows.
type TradeStore interface {
	SaveTrade(ctx context.Context, t domain.Trade) error
	UpdateTrade(ctx context.Context, t domain.Trade) error
	GetOpenTrades(ctx context.Context) ([]domain.Trade, error)
	// ExistsActive checks for a non-closed trade matching the position
	// key, surviving process restart (spec §4.4 step 4). An error means
	// the check failed — callers must fail closed (skip the opportunity).
	ExistsActive(ctx context.Context, city, date, tokenID string, side domain.Side, venue domain.Venue) (bool, error)
}

// OpportunityStore is the append-only opportunities table: one row per
// evaluation, no deduplication at write time.
type OpportunityStore interface {
	SaveOpportunity(ctx context.Context, o domain.Opportunity) error
}

// MarketSnapshot is one periodic market-state capture (spec §6 snapshots
// table).
type MarketSnapshot struct {
	City      string
	Date      string
	TokenID   string
	Venue     domain.Venue
	Bid, Ask  float64
	Volume    float64
	CapturedAt time.Time
}

// SnapshotStore is the periodic snapshots table.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s MarketSnapshot) error
}

// CalibrationSource is the two history tables CalibrationStore reads from
// (spec §4.1 Input): a per-forecast-per-source accuracy ledger and a
// resolved-opportunities table, each restricted to a rolling window.
type CalibrationSource interface {
	FetchAccuracyRows(ctx context.Context, windowDays int) ([]AccuracyRow, error)
	FetchResolvedOpportunities(ctx context.Context, windowDays int) ([]ResolvedOpportunity, error)
}

// AccuracyRow is one row of the v2_forecast_accuracy ledger: signed
// error = forecast - actual.
type AccuracyRow struct {
	City   string
	Date   string
	Source string
	Unit   domain.Unit
	Lead   string // lead-time bucket key: near|same-day|next-day|multi-day
	Error  float64
}

// ResolvedOpportunity is a past opportunity joined with its eventual
// outcome, used to build the market/model calibration tables.
type ResolvedOpportunity struct {
	Opp     domain.Opportunity
	Outcome bool // true: the range resolved YES
}
