package ports

import (
	"context"
	"time"

	"github.com/arourke/wxengine/internal/domain"
)

// PriceQuote is a point-in-time book snapshot for one token.
type PriceQuote struct {
	Bid    float64
	Ask    float64
	Spread float64
	Volume float64
}

// ExecutionRecord is the result of a (possibly simulated) order placement.
type ExecutionRecord struct {
	OrderID      string
	FilledShares int64
	FilledPrice  float64
	At           time.Time
}

// VenueAdapter is the per-venue interface the Executor and Scanner use to
// read markets/prices and place orders (spec §6). Out of scope for this
// core: order book matching, wire protocol, authentication — the adapter
// owns all of that and exposes only this surface.
type VenueAdapter interface {
	Venue() domain.Venue

	// GetMarkets returns all active contracts for a city/date. An empty
	// slice is a valid "no markets" response, not an error.
	GetMarkets(ctx context.Context, city domain.City, date string) ([]domain.Range, error)

	// GetPrice returns nil (not an error) when the market/token has no
	// live quote.
	GetPrice(ctx context.Context, marketID, tokenID string) (*PriceQuote, error)

	ExecuteBuy(ctx context.Context, opp domain.Opportunity, shares int64, price float64) (*ExecutionRecord, error)

	// GetEntryFee is venue-specific: one venue charges 0.07*p*(1-p) per
	// contract at entry and zero at settlement; the other charges nothing
	// on weather markets. The core never assumes a fee schedule beyond
	// this function.
	GetEntryFee(askPrice float64) float64
}
