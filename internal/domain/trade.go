package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeState is the lifecycle state of a Trade (spec §3).
type TradeState string

const (
	TradeOpen     TradeState = "open"
	TradeExited   TradeState = "exited"   // user-initiated close
	TradeResolved TradeState = "resolved" // settled by the outcome resolver
)

// EvaluatorLogEntry is one row in a Trade's bounded evaluator-log array.
type EvaluatorLogEntry struct {
	At          time.Time
	Probability float64
	MarketPrice float64
	Note        string
}

// maxEvaluatorLogEntries bounds Trade.EvaluatorLog to the last N entries,
// FIFO when full (spec §3).
const maxEvaluatorLogEntries = 100

// Trade is created from an approved Opportunity. Monetary fields use
// decimal.Decimal rather than float64 so cost/bankroll accounting is exact
// to the cent; probability/forecast fields stay float64 since the spec's
// formulas (and its 10⁻⁹ round-trip tolerances) are expressed in floating
// point throughout.
type Trade struct {
	ID           string
	OpportunityID string

	City  string
	Date  string
	Range Range
	Side  Side
	Venue Venue

	EntryPrice decimal.Decimal // ask paid at entry, as a probability (0-1)
	Shares     int64
	Cost       decimal.Decimal // shares * EntryPrice, frozen once Resolved
	Fee        decimal.Decimal

	EntryReason       EntryReason
	EntryProbability  float64
	EntryEdgePct      float64
	EntryKelly        float64
	EnsembleTempF     float64
	EnsembleStdDevC   float64
	SourcesAtEntry    []string
	SpreadAtEntry     float64
	VolumeAtEntry     float64

	State TradeState

	EvaluatorLog []EvaluatorLogEntry

	CurrentPrice float64
	MaxPrice     float64
	MinProb      float64

	PnL       decimal.Decimal
	Fees      decimal.Decimal
	CreatedAt time.Time
	ResolvedAt *time.Time
}

// AppendEvaluatorLog appends a log entry, dropping the oldest when the
// bound is exceeded.
func (t *Trade) AppendEvaluatorLog(e EvaluatorLogEntry) {
	t.EvaluatorLog = append(t.EvaluatorLog, e)
	if over := len(t.EvaluatorLog) - maxEvaluatorLogEntries; over > 0 {
		t.EvaluatorLog = t.EvaluatorLog[over:]
	}
}

// RefreshMarket updates the current-price/maxima-minima fields a monitor
// maintains while a trade is open. It is a no-op once the trade is
// resolved — resolved monetary/state fields are frozen (spec §3 invariant).
func (t *Trade) RefreshMarket(price, prob float64) {
	if t.State == TradeResolved {
		return
	}
	t.CurrentPrice = price
	if price > t.MaxPrice {
		t.MaxPrice = price
	}
	if t.MinProb == 0 || prob < t.MinProb {
		t.MinProb = prob
	}
}

// Resolve freezes monetary fields and transitions to the terminal state.
func (t *Trade) Resolve(pnl, fees decimal.Decimal, at time.Time) {
	if t.State == TradeResolved {
		return
	}
	t.PnL = pnl
	t.Fees = fees
	t.State = TradeResolved
	t.ResolvedAt = &at
}
