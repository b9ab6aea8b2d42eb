package notify_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/arourke/wxengine/internal/adapters/notify"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func makeTestTrade() domain.Trade {
	return domain.Trade{
		ID: "t1", City: "nyc", Date: "2026-08-01",
		Range: domain.Range{Name: "70-72F"}, Side: domain.SideYes, Venue: "kalshi",
		EntryPrice: decimal.NewFromFloat(0.45), Shares: 100,
		Cost: decimal.NewFromFloat(45), Fee: decimal.NewFromFloat(1.2),
		EntryReason: domain.EntryNormal, EntryEdgePct: 12.5, EntryKelly: 0.08,
		State: domain.TradeOpen,
	}
}

func TestConsole_TradeEntry_WritesOneLine(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	err := c.TradeEntry(context.Background(), makeTestTrade())
	require.NoError(t, err)
	require.Contains(t, buf.String(), "ENTRY")
	require.Contains(t, buf.String(), "nyc")
	require.Contains(t, buf.String(), "70-72F")
}

func TestConsole_TradeExit_IncludesPnL(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	trade := makeTestTrade()
	trade.State = domain.TradeResolved
	trade.PnL = decimal.NewFromFloat(5.5)

	err := c.TradeExit(context.Background(), trade)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "EXIT")
	require.Contains(t, buf.String(), "resolved")
	require.Contains(t, buf.String(), "5.50")
}

func TestConsole_SendNow_WritesMessage(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	err := c.SendNow(context.Background(), "platform stale, suppressing alerts")
	require.NoError(t, err)
	require.Contains(t, buf.String(), "platform stale, suppressing alerts")
}
