package executor

import (
	"context"
	"testing"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/stretchr/testify/require"
)

type fakeVenue struct {
	venue domain.Venue
	fee   float64
}

func (v *fakeVenue) Venue() domain.Venue { return v.venue }
func (v *fakeVenue) GetMarkets(ctx context.Context, city domain.City, date string) ([]domain.Range, error) {
	return nil, nil
}
func (v *fakeVenue) GetPrice(ctx context.Context, marketID, tokenID string) (*ports.PriceQuote, error) {
	return nil, nil
}
func (v *fakeVenue) ExecuteBuy(ctx context.Context, opp domain.Opportunity, shares int64, price float64) (*ports.ExecutionRecord, error) {
	return &ports.ExecutionRecord{OrderID: "ord-1", FilledShares: shares, FilledPrice: price, At: time.Now()}, nil
}
func (v *fakeVenue) GetEntryFee(askPrice float64) float64 { return v.fee }

func yesOpp(ask float64, kelly, edgePct float64) domain.Opportunity {
	return domain.Opportunity{
		ID: "opp-1", City: "nyc", Date: "2026-08-01",
		Range: domain.Range{TokenID: "tok-1", Volume: 10000},
		Side:  domain.SideYes, Venue: "kalshi",
		CorrectedProbability: 0.6, EdgePct: edgePct, KellyFraction: kelly,
		Approved: true, EntryReason: domain.EntryNormal,
		Yes: &domain.YesOpportunity{Ask: ask},
	}
}

func newTestExecutor(t *testing.T, cfg Config, store *fakeTradeStore) *Executor {
	t.Helper()
	b, err := NewBankroll(context.Background(), cfg, store)
	require.NoError(t, err)
	venues := map[domain.Venue]ports.VenueAdapter{"kalshi": &fakeVenue{venue: "kalshi"}}
	return New(cfg, b, venues, store, nil)
}

func TestExecute_HappyPath(t *testing.T) {
	cfg := DefaultConfig()
	store := &fakeTradeStore{}
	ex := newTestExecutor(t, cfg, store)

	trade, err := ex.Execute(context.Background(), yesOpp(0.40, 0.5, 20))
	require.NoError(t, err)
	require.NotNil(t, trade)
	require.Equal(t, domain.TradeOpen, trade.State)
	require.Greater(t, trade.Shares, int64(0))
}

func TestExecute_RejectsZeroVolume(t *testing.T) {
	cfg := DefaultConfig()
	store := &fakeTradeStore{}
	ex := newTestExecutor(t, cfg, store)

	opp := yesOpp(0.40, 0.5, 20)
	opp.Range.Volume = 0
	_, err := ex.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrSkip)
}

func TestExecute_RejectsBelowMinBet(t *testing.T) {
	cfg := DefaultConfig()
	store := &fakeTradeStore{}
	ex := newTestExecutor(t, cfg, store)

	// Tiny Kelly fraction sizes well under MinBetDollars.
	opp := yesOpp(0.40, 0.0001, 1)
	_, err := ex.Execute(context.Background(), opp)
	require.ErrorIs(t, err, ErrSkip)
}

func TestExecute_CapsAtVolumeParticipation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KellyFractionScale = 1.0
	cfg.MaxBetPctBankroll = 1.0
	store := &fakeTradeStore{}
	ex := newTestExecutor(t, cfg, store)

	opp := yesOpp(0.40, 0.9, 50)
	opp.Range.Volume = 5000 // $450 lies between the 15% soft cap ($300) and the 25% hard cap ($500): clamp, not reject
	trade, err := ex.Execute(context.Background(), opp)
	require.NoError(t, err)
	maxDollars := opp.Range.Volume * opp.Yes.Ask * cfg.SoftVolumeCapPct
	spent, _ := trade.Cost.Float64()
	require.LessOrEqual(t, spent, maxDollars+0.001)
}

func TestExecute_BankrollFloorStopsTrading(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BankrollFloorDollars = 1000 // above the configured total, so it's immediately below floor
	store := &fakeTradeStore{}
	ex := newTestExecutor(t, cfg, store)

	_, err := ex.Execute(context.Background(), yesOpp(0.40, 0.5, 20))
	require.ErrorIs(t, err, ErrSkip)
}
