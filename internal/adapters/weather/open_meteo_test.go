package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arourke/wxengine/internal/adapters/weather"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestOpenMeteo_FetchMultiDay_ParsesDaily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Contains(t, r.URL.Query().Get("models"), "gfs_seamless")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"daily":{"time":["2026-08-01","2026-08-02"],"temperature_2m_max":[88.5,90.1]}}`))
	}))
	defer srv.Close()

	src := weather.NewOpenMeteo("gfs", "gfs_seamless", srv.URL, false)
	require.Equal(t, "gfs", src.Name())
	require.False(t, src.Shadow())

	days, err := src.FetchMultiDay(context.Background(), 41.8, -87.6, "America/Chicago", 2)
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "2026-08-01", days[0].Date)
	require.InDelta(t, 88.5, days[0].HighCanonical, 0.01)
	require.Equal(t, domain.UnitFahrenheit, days[0].Unit)
}

func TestOpenMeteo_FetchMultiDay_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := weather.NewOpenMeteo("ecmwf", "ecmwf_ifs025", srv.URL, false)
	_, err := src.FetchMultiDay(context.Background(), 41.8, -87.6, "America/Chicago", 2)
	require.Error(t, err)
}

func TestEnsembleSpread_ShadowIsAlwaysTrue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"daily":{"time":["2026-08-01"],"temperature_2m_max":[[88,89,90]]}}`))
	}))
	defer srv.Close()

	src := weather.NewEnsembleSpread(srv.URL)
	require.True(t, src.Shadow())

	days, err := src.FetchMultiDay(context.Background(), 41.8, -87.6, "America/Chicago", 1)
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.InDelta(t, 89.0, days[0].HighCanonical, 0.01)
}
