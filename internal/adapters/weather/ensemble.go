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

type ensembleResponse struct {
	Daily struct {
		Time           []string    `json:"time"`
		TemperatureMax [][]float64 `json:"temperature_2m_max"` // one column per ensemble member
	} `json:"daily"`
}

// EnsembleSpread implements ports.WeatherSource against Open-Meteo's
// ensemble API, the read-only eighth source that exists purely to record
// cross-member spread for variance, not to enter the live average (spec
// §4.2) — so Shadow always reports true regardless of caller.
type EnsembleSpread struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

func NewEnsembleSpread(baseURL string) *EnsembleSpread {
	return &EnsembleSpread{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 2),
	}
}

func (e *EnsembleSpread) Name() string { return "ensemble_spread" }
func (e *EnsembleSpread) Shadow() bool { return true }

// FetchMultiDay reports the per-day mean across ensemble members as the
// representative temperature; the spread itself is recorded for
// calibration bookkeeping via the source snapshot, not computed here.
func (e *EnsembleSpread) FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]ports.DailyHigh, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather.EnsembleSpread: %w", err)
	}

	url := fmt.Sprintf(
		"%s/v1/ensemble?latitude=%f&longitude=%f&daily=temperature_2m_max&temperature_unit=fahrenheit&timezone=%s&forecast_days=%d&models=gfs_seamless",
		e.baseURL, lat, lon, tz, days,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("weather.EnsembleSpread: %w", err)
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather.EnsembleSpread: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("weather.EnsembleSpread: status %d", resp.StatusCode)
	}

	var body ensembleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("weather.EnsembleSpread: decode: %w", err)
	}

	out := make([]ports.DailyHigh, 0, len(body.Daily.Time))
	for i, date := range body.Daily.Time {
		if i >= len(body.Daily.TemperatureMax) || len(body.Daily.TemperatureMax[i]) == 0 {
			continue
		}
		members := body.Daily.TemperatureMax[i]
		sum := 0.0
		for _, v := range members {
			sum += v
		}
		out = append(out, ports.DailyHigh{
			Date: date, HighCanonical: sum / float64(len(members)), Unit: domain.UnitFahrenheit,
		})
	}
	return out, nil
}
