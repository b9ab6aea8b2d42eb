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

type nwsPointsResponse struct {
	Properties struct {
		GridID           string `json:"gridId"`
		GridX            int    `json:"gridX"`
		GridY            int    `json:"gridY"`
		ForecastGridData string `json:"forecastGridData"`
	} `json:"properties"`
}

type nwsGridpointResponse struct {
	Properties struct {
		MaxTemperature struct {
			Values []struct {
				ValidTime string  `json:"validTime"`
				Value     float64 `json:"value"` // degrees C, per api.weather.gov convention
			} `json:"values"`
		} `json:"maxTemperature"`
	} `json:"properties"`
}

type nwsGrid struct {
	id   string
	x, y int
}

// NWS implements ports.WeatherSource against api.weather.gov, the single
// US-government source that only fetches for US cities (spec §4.2). The
// lat/lon-to-grid lookup rarely changes for a given city, so it is cached
// for the process lifetime rather than re-resolved on every fetch.
type NWS struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	grids map[string]nwsGrid
}

func NewNWS(baseURL string) *NWS {
	return &NWS{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 3),
		grids:   map[string]nwsGrid{},
	}
}

func (n *NWS) Name() string { return "nws" }
func (n *NWS) Shadow() bool { return false }

func (n *NWS) FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]ports.DailyHigh, error) {
	grid, err := n.gridFor(ctx, lat, lon)
	if err != nil {
		return nil, fmt.Errorf("weather.NWS: %w", err)
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather.NWS: %w", err)
	}
	var gp nwsGridpointResponse
	url := fmt.Sprintf("%s/gridpoints/%s/%d,%d", n.baseURL, grid.id, grid.x, grid.y)
	if err := n.getJSON(ctx, url, &gp); err != nil {
		return nil, fmt.Errorf("weather.NWS: gridpoint: %w", err)
	}

	byDate := map[string]float64{}
	for _, v := range gp.Properties.MaxTemperature.Values {
		date := v.ValidTime
		if len(date) >= 10 {
			date = date[:10]
		}
		byDate[date] = v.Value
	}

	out := make([]ports.DailyHigh, 0, len(byDate))
	for date, c := range byDate {
		out = append(out, ports.DailyHigh{Date: date, HighCanonical: c, Unit: domain.UnitCelsius})
	}
	return out, nil
}

func (n *NWS) gridFor(ctx context.Context, lat, lon float64) (nwsGrid, error) {
	key := fmt.Sprintf("%.4f,%.4f", lat, lon)

	n.mu.Lock()
	g, ok := n.grids[key]
	n.mu.Unlock()
	if ok {
		return g, nil
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return nwsGrid{}, err
	}
	var pts nwsPointsResponse
	url := fmt.Sprintf("%s/points/%.4f,%.4f", n.baseURL, lat, lon)
	if err := n.getJSON(ctx, url, &pts); err != nil {
		return nwsGrid{}, fmt.Errorf("points lookup: %w", err)
	}
	g = nwsGrid{id: pts.Properties.GridID, x: pts.Properties.GridX, y: pts.Properties.GridY}

	n.mu.Lock()
	n.grids[key] = g
	n.mu.Unlock()
	return g, nil
}

func (n *NWS) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "wxengine (contact: ops@wxengine.example)")
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
