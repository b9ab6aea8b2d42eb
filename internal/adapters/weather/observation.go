package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"golang.org/x/time/rate"
)

type metarResponse []struct {
	ICAOID  string  `json:"icaoId"`
	Temp    float64 `json:"temp"` // degrees C
	ObsTime int64   `json:"obsTime"`
}

type currentConditionsResponse struct {
	Main struct {
		TempMax float64 `json:"temp_max"`
	} `json:"main"`
	Dt int64 `json:"dt"`
}

// StationObservationFeed implements ports.ObservationFeed by combining a
// primary station API (aviationweather.gov METAR) with a secondary weather
// service (a generic current-conditions endpoint), per spec §4.4's dual
// confirmation requirement. A single call only ever queries one station
// ID; the guaranteed-win detector calls twice, once per station, and
// compares the two Observation values itself — this feed's job is to turn
// one station's raw reading into a running high for the trading date.
type StationObservationFeed struct {
	metarBaseURL string
	secondaryURL string
	secondaryKey string
	http         *http.Client
	limiter      *rate.Limiter

	mu      sync.Mutex
	running map[string]*runningHigh
}

type runningHigh struct {
	highC float64
	n     int
}

func NewStationObservationFeed(metarBaseURL, secondaryURL, secondaryKey string) *StationObservationFeed {
	return &StationObservationFeed{
		metarBaseURL: metarBaseURL,
		secondaryURL: secondaryURL,
		secondaryKey: secondaryKey,
		http:         &http.Client{Timeout: 10 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(6), 3),
		running:      map[string]*runningHigh{},
	}
}

// GetLatestObservation fetches the station's current reading, folds it
// into the (city, date, station) running high, and cross-checks a
// secondary weather service for the WUHigh confirmation fields.
func (f *StationObservationFeed) GetLatestObservation(ctx context.Context, city domain.City, date, stationID string) (*ports.Observation, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather.StationObservationFeed: %w", err)
	}

	var resp metarResponse
	url := fmt.Sprintf("%s/metar?ids=%s&format=json", f.metarBaseURL, stationID)
	if err := f.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("weather.StationObservationFeed: metar: %w", err)
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("weather.StationObservationFeed: no METAR for %s", stationID)
	}
	latest := resp[0]

	key := city.Key + ":" + date + ":" + stationID
	f.mu.Lock()
	rh, ok := f.running[key]
	if !ok {
		rh = &runningHigh{highC: latest.Temp}
		f.running[key] = rh
	} else if latest.Temp > rh.highC {
		rh.highC = latest.Temp
	}
	rh.n++
	highC := rh.highC
	count := rh.n
	f.mu.Unlock()

	obs := &ports.Observation{
		RunningHighC:     highC,
		RunningHighF:     domain.CelsiusToFahrenheit(highC),
		ObservedAt:       time.Unix(latest.ObsTime, 0),
		ObservationCount: count,
	}

	if f.secondaryURL != "" {
		if wuC, ok := f.fetchSecondary(ctx, city); ok {
			obs.WUHighC = wuC
			obs.WUHighF = domain.CelsiusToFahrenheit(wuC)
		}
	}

	return obs, nil
}

// fetchSecondary queries the confirming weather service; failures are
// non-fatal since the primary station reading alone is enough to detect a
// metar-only guaranteed win (spec §4.4).
func (f *StationObservationFeed) fetchSecondary(ctx context.Context, city domain.City) (float64, bool) {
	var resp currentConditionsResponse
	url := fmt.Sprintf("%s/weather?lat=%f&lon=%f&units=metric&appid=%s", f.secondaryURL, city.Lat, city.Lon, f.secondaryKey)
	if err := f.getJSON(ctx, url, &resp); err != nil {
		return 0, false
	}
	return resp.Main.TempMax, true
}

func (f *StationObservationFeed) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
