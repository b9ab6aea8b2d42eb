package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrSkip is returned (never wrapped further up) when an opportunity was
// deliberately not executed; the reason is logged at the call site, not
// propagated as a hard error.
var ErrSkip = errors.New("executor: opportunity skipped")

// Executor places orders for approved opportunities, serialized per
// bankroll so two concurrent scans never double-spend the same dollars.
type Executor struct {
	cfg      Config
	bankroll *Bankroll
	venues   map[domain.Venue]ports.VenueAdapter
	trades   ports.TradeStore
	alerts   ports.Alerts

	mu chan struct{} // 1-buffered mutex: serializes the whole sequence
}

// New wires an Executor against its dependencies.
func New(cfg Config, bankroll *Bankroll, venues map[domain.Venue]ports.VenueAdapter, trades ports.TradeStore, alerts ports.Alerts) *Executor {
	mu := make(chan struct{}, 1)
	mu <- struct{}{}
	return &Executor{cfg: cfg, bankroll: bankroll, venues: venues, trades: trades, alerts: alerts, mu: mu}
}

// Execute runs the 10-step sequence of spec §4.4 for one approved
// opportunity. Guaranteed-win opportunities skip Kelly sizing entirely in
// favor of the fixed-percentage rule (step 6 below).
func (e *Executor) Execute(ctx context.Context, opp domain.Opportunity) (*domain.Trade, error) {
	select {
	case <-e.mu:
		defer func() { e.mu <- struct{}{} }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	venue, ok := e.venues[opp.Venue]
	if !ok {
		return nil, fmt.Errorf("%w: no venue adapter for %s", ErrSkip, opp.Venue)
	}

	// 1. Bankroll floor check.
	balance := e.bankroll.Balance(opp.Side)
	if balance < e.cfg.BankrollFloorDollars {
		return nil, fmt.Errorf("%w: %s bankroll below floor", ErrSkip, opp.Side)
	}

	ask, bid, volume := askBidVolume(opp)
	if ask <= 0 {
		return nil, fmt.Errorf("%w: no ask", ErrSkip)
	}

	// Entry fee is fetched and folded into cost before sizing, not after
	// order placement (spec §4.4 step 6): effectiveCost = ask + entryFee.
	fee := venue.GetEntryFee(ask)
	effectiveCost := ask + fee
	netProfit := 1 - effectiveCost
	if netProfit <= 0 {
		return nil, fmt.Errorf("%w: non-positive net profit at effective cost %.4f", ErrSkip, effectiveCost)
	}

	// 2. Volume-zero check.
	if volume <= 0 {
		return nil, fmt.Errorf("%w: zero market volume", ErrSkip)
	}

	// 3. NO per-date exposure cap check.
	if opp.Side == domain.SideNo {
		if e.bankroll.NoExposure(opp.City, opp.Date) >= e.cfg.NoMaxExposurePerDate {
			return nil, fmt.Errorf("%w: NO per-date exposure cap reached", ErrSkip)
		}
	}

	// 4. Duplicate check, fail closed on error.
	exists, err := e.trades.ExistsActive(ctx, opp.City, opp.Date, opp.Range.TokenID, opp.Side, opp.Venue)
	if err != nil {
		return nil, fmt.Errorf("executor: duplicate check failed, failing closed: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: duplicate active position", ErrSkip)
	}

	// 5. Side-level mutual exclusivity: an open position on the opposite
	// side of the same range blocks entry (checked upstream by the Scanner
	// pre-pass too, re-checked here since state may have changed between
	// evaluation and execution).
	oppositeExists, err := e.trades.ExistsActive(ctx, opp.City, opp.Date, opp.Range.TokenID, oppositeSide(opp.Side), opp.Venue)
	if err != nil {
		return nil, fmt.Errorf("executor: mutual-exclusivity check failed, failing closed: %w", err)
	}
	if oppositeExists {
		return nil, fmt.Errorf("%w: opposite side already held", ErrSkip)
	}

	// 6. Sizing: guaranteed-win uses fixed bankroll-percentage sizing;
	// everything else uses fractional Kelly, bankroll- and per-date-capped.
	var dollars float64
	if opp.GW != nil {
		dollars = balance * e.cfg.GWMaxBankrollPct
		if dollars > balance {
			dollars = balance
		}
	} else {
		dollars = e.kellySize(balance, opp, effectiveCost, netProfit)
	}
	if dollars < e.cfg.MinBetDollars {
		return nil, fmt.Errorf("%w: sized below minimum bet", ErrSkip)
	}
	if opp.Side == domain.SideNo {
		headroom := e.cfg.NoMaxExposurePerDate - e.bankroll.NoExposure(opp.City, opp.Date)
		if dollars > headroom {
			dollars = headroom
		}
	}

	// 7. Volume participation: hard reject above MaxVolumeParticipationPct
	// of book volume, soft-cap down to SoftVolumeCapPct in between.
	maxDollars := volume * ask * e.cfg.MaxVolumeParticipationPct
	if dollars > maxDollars {
		return nil, fmt.Errorf("%w: exceeds hard volume participation cap", ErrSkip)
	}
	softCap := volume * ask * e.cfg.SoftVolumeCapPct
	if dollars > softCap {
		dollars = softCap
	}
	if dollars < e.cfg.MinBetDollars {
		return nil, fmt.Errorf("%w: sized below minimum bet after volume cap", ErrSkip)
	}

	shares := int64(dollars / effectiveCost)
	if shares <= 0 {
		return nil, fmt.Errorf("%w: zero shares after sizing", ErrSkip)
	}

	// 8. Order placement.
	rec, err := venue.ExecuteBuy(ctx, opp, shares, ask)
	if err != nil {
		return nil, fmt.Errorf("executor: order placement failed: %w", err)
	}

	// Fee on the trade record is recomputed from the actual fill price,
	// which may differ from the pre-sizing ask used for effectiveCost above.
	fillFee := venue.GetEntryFee(rec.FilledPrice)
	cost := decimal.NewFromFloat(rec.FilledPrice).Mul(decimal.NewFromInt(rec.FilledShares))
	feeDec := decimal.NewFromFloat(fillFee).Mul(decimal.NewFromInt(rec.FilledShares))

	trade := domain.Trade{
		ID:               uuid.NewString(),
		OpportunityID:    opp.ID,
		City:             opp.City,
		Date:             opp.Date,
		Range:            opp.Range,
		Side:             opp.Side,
		Venue:            opp.Venue,
		EntryPrice:       decimal.NewFromFloat(rec.FilledPrice),
		Shares:           rec.FilledShares,
		Cost:             cost,
		Fee:              feeDec,
		EntryReason:      opp.EntryReason,
		EntryProbability: opp.CorrectedProbability,
		EntryEdgePct:     opp.EdgePct,
		EntryKelly:       opp.KellyFraction,
		SpreadAtEntry:    ask - bid,
		VolumeAtEntry:    volume,
		State:            domain.TradeOpen,
		CurrentPrice:     rec.FilledPrice,
		MaxPrice:         rec.FilledPrice,
		MinProb:          opp.CorrectedProbability,
		CreatedAt:        rec.At,
	}

	// 9. Trade record written before bankroll decrement (spec §7 ordering
	// rule: a crash here leaves an under-counted bankroll, not a
	// double-spent one).
	if err := e.trades.SaveTrade(ctx, trade); err != nil {
		return nil, fmt.Errorf("executor: failed to persist trade after fill: %w", err)
	}
	e.bankroll.Reserve(opp.Side, opp.City, opp.Date, cost)

	// 10. Alert queuing.
	if e.alerts != nil {
		if err := e.alerts.TradeEntry(ctx, trade); err != nil {
			slog.Warn("executor: trade-entry alert failed", "trade", trade.ID, "err", err)
		}
	}

	return &trade, nil
}

// kellySize applies fractional-Kelly scaling to the opportunity's model
// Kelly fraction, then caps at MaxBetPctBankroll of the side's balance.
// Prefers the scanner's pre-computed Kelly fraction when positive;
// otherwise recomputes it from the opportunity's corrected probability and
// the actual effective cost/net profit at execution time (spec §4.4 step 6).
func (e *Executor) kellySize(balance float64, opp domain.Opportunity, effectiveCost, netProfit float64) float64 {
	raw := opp.KellyFraction
	if raw <= 0 {
		b := netProfit / effectiveCost
		p := opp.CorrectedProbability
		raw = (b*p - (1 - p)) / b
		if raw < 0 || !domain.IsFinite(raw) {
			return 0
		}
	}
	f := raw * e.cfg.KellyFractionScale
	if f <= 0 {
		return 0
	}
	dollars := balance * f
	maxBet := balance * e.cfg.MaxBetPctBankroll
	if dollars > maxBet {
		dollars = maxBet
	}
	return dollars
}

func askBidVolume(opp domain.Opportunity) (ask, bid, volume float64) {
	volume = opp.Range.Volume
	switch {
	case opp.Side == domain.SideYes && opp.Yes != nil:
		return opp.Yes.Ask, opp.Range.Book.BestBid(), volume
	case opp.Side == domain.SideNo && opp.No != nil:
		return opp.No.Ask, opp.No.Bid, volume
	default:
		return 0, 0, volume
	}
}

func oppositeSide(s domain.Side) domain.Side {
	if s == domain.SideYes {
		return domain.SideNo
	}
	return domain.SideYes
}
