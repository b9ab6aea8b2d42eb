package venue_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arourke/wxengine/internal/adapters/venue"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/stretchr/testify/require"
)

func polymarketCity() domain.City {
	return domain.City{
		Key: "chi", Name: "Chicago", TZ: "America/Chicago", Unit: domain.UnitFahrenheit,
		Stations: map[domain.Venue]string{"polymarket": "KMDW"}, IsUS: true,
	}
}

func TestPolymarket_GetMarkets_MapsAndSortsBook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/markets":
			w.Write([]byte(`[{
				"condition_id":"0xabc","question":"Chicago high 70-72F",
				"volume24hr":"1200.5","strike_type":"between","floor_strike":"70","cap_strike":"72",
				"tokens":[{"token_id":"tid_yes","outcome":"Yes"},{"token_id":"tid_no","outcome":"No"}]
			}]`))
		default:
			w.Write([]byte(`{"asset_id":"tid_yes","bids":[{"price":"0.40","size":"100"},{"price":"0.44","size":"50"}],"asks":[{"price":"0.52","size":"60"},{"price":"0.48","size":"40"}]}`))
		}
	}))
	defer srv.Close()

	p := venue.NewPolymarket(srv.URL, "")
	ranges, err := p.GetMarkets(context.Background(), polymarketCity(), "2026-08-01")
	require.NoError(t, err)
	require.Len(t, ranges, 1)

	r := ranges[0]
	require.Equal(t, domain.RangeBounded, r.Type)
	require.InDelta(t, 1200.5, r.Volume, 0.01)
	require.Equal(t, 0.44, r.Book.BestBid())
	require.Equal(t, 0.48, r.Book.BestAsk())
}

func TestPolymarket_GetEntryFee_IsZero(t *testing.T) {
	p := venue.NewPolymarket("http://unused", "")
	require.Equal(t, 0.0, p.GetEntryFee(0.6))
}

func TestPolymarket_ExecuteBuy_ReturnsFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderID":"0xorder","success":true}`))
	}))
	defer srv.Close()

	p := venue.NewPolymarket(srv.URL, "key")
	opp := domain.Opportunity{ID: "opp-1", Side: domain.SideYes, Range: domain.Range{TokenID: "tid_yes"}}
	rec, err := p.ExecuteBuy(context.Background(), opp, 25, 0.5)
	require.NoError(t, err)
	require.Equal(t, "0xorder", rec.OrderID)
	require.Equal(t, int64(25), rec.FilledShares)
}
