// Package weather implements spec.md §6's WeatherSource and ObservationFeed
// interfaces against real forecast and station-observation APIs. The
// teacher has no direct analogue for a weather client; the thin
// rate-limited REST shape is generalized from the teacher's
// adapters/polymarket/gamma.go market-metadata fetcher.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"golang.org/x/time/rate"
)

// openMeteoResponse is the shape of Open-Meteo's /v1/forecast daily block,
// common to every model variant this package queries.
type openMeteoResponse struct {
	Daily struct {
		Time           []string  `json:"time"`
		TemperatureMax []float64 `json:"temperature_2m_max"`
	} `json:"daily"`
	DailyUnits struct {
		TemperatureMax string `json:"temperature_2m_max"`
	} `json:"daily_units"`
}

// OpenMeteo implements ports.WeatherSource against Open-Meteo's free
// forecast API, parameterized by model so one client type covers the
// global NWP, global NWP alt, and shadow-NWP sources the fan-out needs
// (spec §4.2): Open-Meteo exposes each center's model (GFS, ECMWF IFS,
// ICON, GEM, JMA...) through the same endpoint via the `models` query
// parameter.
type OpenMeteo struct {
	name    string
	model   string
	shadow  bool
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewOpenMeteo wires one named model variant. shadow marks sources that
// are recorded for calibration but never enter the live ensemble.
func NewOpenMeteo(name, model, baseURL string, shadow bool) *OpenMeteo {
	return &OpenMeteo{
		name: name, model: model, shadow: shadow, baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(8), 4),
	}
}

func (o *OpenMeteo) Name() string { return o.name }
func (o *OpenMeteo) Shadow() bool { return o.shadow }

// FetchMultiDay returns the daily high, in the unit Open-Meteo reports it
// in (°F, since we request fahrenheit units), for each of the next `days`
// days.
func (o *OpenMeteo) FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]ports.DailyHigh, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather.OpenMeteo(%s): %w", o.name, err)
	}

	url := fmt.Sprintf(
		"%s/v1/forecast?latitude=%f&longitude=%f&daily=temperature_2m_max&temperature_unit=fahrenheit&timezone=%s&forecast_days=%d&models=%s",
		o.baseURL, lat, lon, tz, days, o.model,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("weather.OpenMeteo(%s): %w", o.name, err)
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather.OpenMeteo(%s): %w", o.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("weather.OpenMeteo(%s): status %d", o.name, resp.StatusCode)
	}

	var body openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("weather.OpenMeteo(%s): decode: %w", o.name, err)
	}

	out := make([]ports.DailyHigh, 0, len(body.Daily.Time))
	for i, date := range body.Daily.Time {
		if i >= len(body.Daily.TemperatureMax) {
			break
		}
		out = append(out, ports.DailyHigh{
			Date:          date,
			HighCanonical: body.Daily.TemperatureMax[i],
			Unit:          domain.UnitFahrenheit,
		})
	}
	return out, nil
}
