package weather_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/arourke/wxengine/internal/adapters/weather"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/stretchr/testify/require"
)

func obsTestCity() domain.City {
	return domain.City{Key: "chi", Name: "Chicago", Lat: 41.8, Lon: -87.6, Unit: domain.UnitFahrenheit}
}

func TestStationObservationFeed_TracksRunningHighAcrossCalls(t *testing.T) {
	temp := 28.0
	metar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"icaoId":"KMDW","temp":` + strconv.FormatFloat(temp, 'f', 1, 64) + `,"obsTime":1753977600}]`))
	}))
	defer metar.Close()

	f := weather.NewStationObservationFeed(metar.URL, "", "")

	obs1, err := f.GetLatestObservation(context.Background(), obsTestCity(), "2026-08-01", "KMDW")
	require.NoError(t, err)
	require.InDelta(t, 28.0, obs1.RunningHighC, 0.01)
	require.Equal(t, 1, obs1.ObservationCount)

	temp = 25.0 // a cooler reading must not pull the running high back down
	obs2, err := f.GetLatestObservation(context.Background(), obsTestCity(), "2026-08-01", "KMDW")
	require.NoError(t, err)
	require.InDelta(t, 28.0, obs2.RunningHighC, 0.01)
	require.Equal(t, 2, obs2.ObservationCount)

	temp = 31.0
	obs3, err := f.GetLatestObservation(context.Background(), obsTestCity(), "2026-08-01", "KMDW")
	require.NoError(t, err)
	require.InDelta(t, 31.0, obs3.RunningHighC, 0.01)
}

func TestStationObservationFeed_PopulatesSecondaryWhenConfigured(t *testing.T) {
	metar := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"icaoId":"KMDW","temp":28,"obsTime":1753977600}]`))
	}))
	defer metar.Close()
	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"main":{"temp_max":27.5},"dt":1753977600}`))
	}))
	defer secondary.Close()

	f := weather.NewStationObservationFeed(metar.URL, secondary.URL, "key")
	obs, err := f.GetLatestObservation(context.Background(), obsTestCity(), "2026-08-01", "KMDW")
	require.NoError(t, err)
	require.InDelta(t, 27.5, obs.WUHighC, 0.01)
}
