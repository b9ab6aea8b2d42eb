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

func testCity() domain.City {
	return domain.City{
		Key: "nyc", Name: "New York", TZ: "America/New_York", Unit: domain.UnitFahrenheit,
		Stations: map[domain.Venue]string{"kalshi": "KNYC"}, IsUS: true,
	}
}

func TestKalshi_GetMarkets_MapsStrikeTypes(t *testing.T) {
	callCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/trade-api/v2/markets":
			w.Write([]byte(`{"markets":[
				{"ticker":"KXHIGH-T1","event_ticker":"KXHIGH-EVT","yes_sub_title":"70-72F","strike_type":"between","floor_strike":70,"cap_strike":72,"volume":5000}
			]}`))
		default:
			w.Write([]byte(`{"orderbook":{"yes":[[45,100]],"no":[[50,80]]}}`))
		}
	}))
	defer srv.Close()

	k := venue.NewKalshi(srv.URL, "")
	ranges, err := k.GetMarkets(context.Background(), testCity(), "2026-08-01")
	require.NoError(t, err)
	require.Len(t, ranges, 1)

	r := ranges[0]
	require.Equal(t, domain.RangeBounded, r.Type)
	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
	require.InDelta(t, 70.0, *r.Min, 0.01)
	require.InDelta(t, 72.0, *r.Max, 0.01)
	require.InDelta(t, 0.45, r.Book.BestBid(), 0.01)
	require.InDelta(t, 0.50, r.Book.BestAsk(), 0.01)
}

func TestKalshi_GetMarkets_NoStationConfigured_ReturnsEmpty(t *testing.T) {
	k := venue.NewKalshi("http://unused", "")
	city := domain.City{Key: "nyc", Stations: map[domain.Venue]string{}}
	ranges, err := k.GetMarkets(context.Background(), city, "2026-08-01")
	require.NoError(t, err)
	require.Empty(t, ranges)
}

func TestKalshi_GetEntryFee_IsRoundedUpToCent(t *testing.T) {
	k := venue.NewKalshi("http://unused", "")
	fee := k.GetEntryFee(0.5)
	require.Greater(t, fee, 0.0)
	require.InDelta(t, fee*100, float64(int(fee*100+0.0001)), 0.01, "fee should be a whole number of cents")
}

func TestKalshi_ExecuteBuy_ReturnsFill(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order":{"order_id":"ord-123"}}`))
	}))
	defer srv.Close()

	k := venue.NewKalshi(srv.URL, "key")
	opp := domain.Opportunity{ID: "opp-1", Side: domain.SideYes, Range: domain.Range{TokenID: "KXHIGH-T1"}}
	rec, err := k.ExecuteBuy(context.Background(), opp, 10, 0.45)
	require.NoError(t, err)
	require.Equal(t, "ord-123", rec.OrderID)
	require.Equal(t, int64(10), rec.FilledShares)
}
