package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/arourke/wxengine/internal/adapters/storage"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func makeTrade(id string, state domain.TradeState) domain.Trade {
	min := 70.0
	max := 72.0
	return domain.Trade{
		ID:   id,
		City: "nyc",
		Date: "2026-08-01",
		Range: domain.Range{
			TokenID: "tok-" + id, Venue: "kalshi", City: "nyc", Date: "2026-08-01",
			Min: &min, Max: &max, Type: domain.RangeBounded, Unit: domain.UnitFahrenheit,
		},
		Side:             domain.SideYes,
		Venue:            "kalshi",
		EntryPrice:       decimal.NewFromFloat(0.45),
		Shares:           100,
		Cost:             decimal.NewFromFloat(45),
		Fee:              decimal.NewFromFloat(0.5),
		EntryReason:      domain.EntryNormal,
		EntryProbability: 0.6,
		EntryEdgePct:     15,
		EntryKelly:       0.2,
		EnsembleTempF:    71.2,
		EnsembleStdDevC:  1.1,
		SourcesAtEntry:   []string{"nws", "openweather"},
		SpreadAtEntry:    0.02,
		VolumeAtEntry:    5000,
		State:            state,
		PnL:              decimal.Zero,
		Fees:             decimal.Zero,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteStorage_SaveAndGetOpenTrades(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.SaveTrade(ctx, makeTrade("t1", domain.TradeOpen)))
	require.NoError(t, db.SaveTrade(ctx, makeTrade("t2", domain.TradeResolved)))

	open, err := db.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "t1", open[0].ID)
	require.True(t, open[0].Cost.Equal(decimal.NewFromFloat(45)))
}

func TestSQLiteStorage_ExistsActive(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	trade := makeTrade("t1", domain.TradeOpen)
	require.NoError(t, db.SaveTrade(ctx, trade))

	exists, err := db.ExistsActive(ctx, "nyc", "2026-08-01", trade.Range.TokenID, domain.SideYes, "kalshi")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = db.ExistsActive(ctx, "nyc", "2026-08-01", "other-token", domain.SideYes, "kalshi")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestSQLiteStorage_UpdateTrade_RemovesFromOpenSet(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	trade := makeTrade("t1", domain.TradeOpen)
	require.NoError(t, db.SaveTrade(ctx, trade))

	trade.Resolve(decimal.NewFromFloat(10), decimal.NewFromFloat(0.5), time.Now().UTC())
	require.NoError(t, db.UpdateTrade(ctx, trade))

	open, err := db.GetOpenTrades(ctx)
	require.NoError(t, err)
	require.Empty(t, open)
}

func TestSQLiteStorage_SaveOpportunity_AppendOnly(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	opp := domain.Opportunity{
		ID: "o1", City: "nyc", Date: "2026-08-01",
		Range: domain.Range{TokenID: "tok-1"}, Side: domain.SideYes, Venue: "kalshi",
		SnapshotAt: time.Now().UTC(), RawProbability: 0.55, CorrectedProbability: 0.6,
		CorrectionRatio: 1.09, EdgePct: 15, KellyFraction: 0.2, Approved: true,
		EntryReason: domain.EntryNormal, Yes: &domain.YesOpportunity{Ask: 0.45},
	}
	require.NoError(t, db.SaveOpportunity(ctx, opp))
	// Same (city, date, range, side, venue) logged a second time — both rows
	// survive, since the table is append-only with no dedup at write time.
	opp.ID = "o2"
	require.NoError(t, db.SaveOpportunity(ctx, opp))
}

func TestSQLiteStorage_SaveSnapshot(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	err = db.SaveSnapshot(context.Background(), ports.MarketSnapshot{
		City: "nyc", Date: "2026-08-01", TokenID: "tok-1", Venue: "kalshi",
		Bid: 0.4, Ask: 0.45, Volume: 5000, CapturedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestSQLiteStorage_FetchResolvedOpportunities_DerivesOutcomeFromPnL(t *testing.T) {
	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	trade := makeTrade("t1", domain.TradeOpen)
	require.NoError(t, db.SaveTrade(ctx, trade))

	opp := domain.Opportunity{
		ID: "o1", City: "nyc", Date: "2026-08-01",
		Range: domain.Range{TokenID: trade.Range.TokenID}, Side: domain.SideYes, Venue: "kalshi",
		SnapshotAt: time.Now().UTC(), RawProbability: 0.55, CorrectedProbability: 0.6,
		Approved: true, EntryReason: domain.EntryNormal, TradeID: trade.ID,
		Yes: &domain.YesOpportunity{Ask: 0.45},
	}
	require.NoError(t, db.SaveOpportunity(ctx, opp))

	trade.Resolve(decimal.NewFromFloat(55), decimal.NewFromFloat(0.5), time.Now().UTC())
	require.NoError(t, db.UpdateTrade(ctx, trade))

	resolved, err := db.FetchResolvedOpportunities(ctx, 90)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	require.True(t, resolved[0].Outcome)
	require.Equal(t, "o1", resolved[0].Opp.ID)
}
