package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arourke/wxengine/internal/adapters/weather"
	"github.com/stretchr/testify/require"
)

func TestNWS_FetchMultiDay_ResolvesGridThenFetches(t *testing.T) {
	pointsCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/points/41.8000,-87.6000":
			pointsCalls++
			w.Write([]byte(`{"properties":{"gridId":"LOT","gridX":70,"gridY":71}}`))
		case r.URL.Path == "/gridpoints/LOT/70,71":
			w.Write([]byte(`{"properties":{"maxTemperature":{"values":[
				{"validTime":"2026-08-01T00:00:00+00:00/P1D","value":31.5}
			]}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	n := weather.NewNWS(srv.URL)
	require.Equal(t, "nws", n.Name())
	require.False(t, n.Shadow())

	days, err := n.FetchMultiDay(context.Background(), 41.8, -87.6, "America/Chicago", 1)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.InDelta(t, 31.5, days[0].HighCanonical, 0.01)

	_, err = n.FetchMultiDay(context.Background(), 41.8, -87.6, "America/Chicago", 1)
	require.NoError(t, err)
	require.Equal(t, 1, pointsCalls, "grid lookup should be cached across calls")
}
