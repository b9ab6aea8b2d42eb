package executor

import (
	"context"
	"testing"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeTradeStore struct {
	open []domain.Trade
}

func (f *fakeTradeStore) SaveTrade(ctx context.Context, t domain.Trade) error   { return nil }
func (f *fakeTradeStore) UpdateTrade(ctx context.Context, t domain.Trade) error { return nil }
func (f *fakeTradeStore) GetOpenTrades(ctx context.Context) ([]domain.Trade, error) {
	return f.open, nil
}
func (f *fakeTradeStore) ExistsActive(ctx context.Context, city, date, tokenID string, side domain.Side, venue domain.Venue) (bool, error) {
	return false, nil
}

func TestNewBankroll_SubtractsOpenTradeCost(t *testing.T) {
	store := &fakeTradeStore{open: []domain.Trade{
		{Side: domain.SideYes, City: "nyc", Date: "2026-08-01", Cost: decimal.NewFromFloat(50)},
		{Side: domain.SideNo, City: "nyc", Date: "2026-08-01", Cost: decimal.NewFromFloat(30)},
	}}
	cfg := DefaultConfig()

	b, err := NewBankroll(context.Background(), cfg, store)
	require.NoError(t, err)
	require.InDelta(t, cfg.TotalBankrollYes-50, b.Balance(domain.SideYes), 0.001)
	require.InDelta(t, cfg.TotalBankrollNo-30, b.Balance(domain.SideNo), 0.001)
	require.InDelta(t, 30, b.NoExposure("nyc", "2026-08-01"), 0.001)
}

func TestBankroll_ReserveAndRelease(t *testing.T) {
	store := &fakeTradeStore{}
	cfg := DefaultConfig()
	b, err := NewBankroll(context.Background(), cfg, store)
	require.NoError(t, err)

	b.Reserve(domain.SideNo, "chi", "2026-08-02", decimal.NewFromFloat(20))
	require.InDelta(t, cfg.TotalBankrollNo-20, b.Balance(domain.SideNo), 0.001)
	require.InDelta(t, 20, b.NoExposure("chi", "2026-08-02"), 0.001)

	b.Release(domain.SideNo, "chi", "2026-08-02", decimal.NewFromFloat(20))
	require.InDelta(t, cfg.TotalBankrollNo, b.Balance(domain.SideNo), 0.001)
	require.InDelta(t, 0, b.NoExposure("chi", "2026-08-02"), 0.001)
}
