package forecast

import (
	"context"
	"errors"
	"testing"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	shadow bool
	days   []ports.DailyHigh
	err    error
}

func (f fakeSource) Name() string   { return f.name }
func (f fakeSource) Shadow() bool   { return f.shadow }
func (f fakeSource) FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]ports.DailyHigh, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.days, nil
}

type fakeCalSource struct{}

func (fakeCalSource) FetchAccuracyRows(ctx context.Context, windowDays int) ([]ports.AccuracyRow, error) {
	return nil, nil
}
func (fakeCalSource) FetchResolvedOpportunities(ctx context.Context, windowDays int) ([]ports.ResolvedOpportunity, error) {
	return nil, nil
}

func testCity() domain.City {
	return domain.City{Key: "nyc", Lat: 40.7, Lon: -74.0, TZ: "America/New_York", Unit: domain.UnitFahrenheit, IsUS: true}
}

func TestEngine_GetForecast_AveragesAcrossSources(t *testing.T) {
	date := domain.TodayIn("America/New_York")
	sources := []ports.WeatherSource{
		fakeSource{name: "a", days: []ports.DailyHigh{{Date: date, HighCanonical: 68, Unit: domain.UnitFahrenheit}}},
		fakeSource{name: "b", days: []ports.DailyHigh{{Date: date, HighCanonical: 72, Unit: domain.UnitFahrenheit}}},
	}
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(sources, cal, DefaultConfig())

	result, err := eng.GetForecast(context.Background(), testCity(), date)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, result.EnsembleTempF, 1e-6)
	assert.True(t, result.Valid())
}

func TestEngine_GetForecast_SkipsGovSourceForNonUSCity(t *testing.T) {
	date := domain.TodayIn("America/New_York")
	sources := []ports.WeatherSource{
		fakeSource{name: "a", days: []ports.DailyHigh{{Date: date, HighCanonical: 68, Unit: domain.UnitFahrenheit}}},
		fakeSource{name: "nws", days: []ports.DailyHigh{{Date: date, HighCanonical: 1000, Unit: domain.UnitFahrenheit}}},
	}
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(sources, cal, DefaultConfig())

	city := testCity()
	city.IsUS = false
	result, err := eng.GetForecast(context.Background(), city, date)
	require.NoError(t, err)
	assert.InDelta(t, 68.0, result.EnsembleTempF, 1e-6)
}

func TestEngine_GetForecast_ShadowSourceNeverEntersAverage(t *testing.T) {
	date := domain.TodayIn("America/New_York")
	sources := []ports.WeatherSource{
		fakeSource{name: "a", days: []ports.DailyHigh{{Date: date, HighCanonical: 70, Unit: domain.UnitFahrenheit}}},
		fakeSource{name: "shadow", shadow: true, days: []ports.DailyHigh{{Date: date, HighCanonical: 200, Unit: domain.UnitFahrenheit}}},
	}
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(sources, cal, DefaultConfig())

	result, err := eng.GetForecast(context.Background(), testCity(), date)
	require.NoError(t, err)
	assert.InDelta(t, 70.0, result.EnsembleTempF, 1e-6)

	var sawShadow bool
	for _, s := range result.Sources {
		if s.Source == "shadow" {
			sawShadow = true
		}
	}
	assert.True(t, sawShadow, "shadow source should still be recorded in the snapshot list")
}

func TestEngine_GetForecast_ErrNoForecastWhenEverySourceFails(t *testing.T) {
	sources := []ports.WeatherSource{
		fakeSource{name: "a", err: errors.New("boom")},
	}
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(sources, cal, DefaultConfig())

	_, err := eng.GetForecast(context.Background(), testCity(), domain.TodayIn("America/New_York"))
	assert.ErrorIs(t, err, ErrNoForecast)
}

func TestEngine_CalculateProbability_UsesNormalApproxWithoutEmpiricalCDF(t *testing.T) {
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(nil, cal, DefaultConfig())

	min, max := 68.0, 72.0
	p := eng.CalculateProbability(context.Background(), 70, 1.0, &min, &max, domain.UnitFahrenheit, "nyc")
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 1.0)
}

func TestEngine_GetCityEligibility_AllowsEverythingBelowMinSamples(t *testing.T) {
	cal := calibration.NewStore(fakeCalSource{}, calibration.DefaultConfig(), 0, 30)
	eng := NewEngine(nil, cal, DefaultConfig())

	e := eng.GetCityEligibility(context.Background(), testCity(), calibration.DefaultConfig())
	assert.True(t, e.AllowBounded)
	assert.True(t, e.AllowUnbounded)
}
