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

type visualCrossingResponse struct {
	Days []struct {
		Datetime string  `json:"datetime"`
		TempMax  float64 `json:"tempmax"`
	} `json:"days"`
}

// Commercial implements ports.WeatherSource against Visual Crossing's
// Timeline API, the paid commercial forecast feed among the three global
// sources (spec §4.2).
type Commercial struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

func NewCommercial(baseURL, apiKey string) *Commercial {
	return &Commercial{
		baseURL: baseURL, apiKey: apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 2),
	}
}

func (c *Commercial) Name() string { return "visualcrossing" }
func (c *Commercial) Shadow() bool { return false }

func (c *Commercial) FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]ports.DailyHigh, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("weather.Commercial: %w", err)
	}

	start := time.Now().Format("2006-01-02")
	end := time.Now().AddDate(0, 0, days-1).Format("2006-01-02")
	url := fmt.Sprintf("%s/timeline/%f,%f/%s/%s?unitGroup=us&include=days&key=%s",
		c.baseURL, lat, lon, start, end, c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("weather.Commercial: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather.Commercial: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("weather.Commercial: status %d", resp.StatusCode)
	}

	var body visualCrossingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("weather.Commercial: decode: %w", err)
	}

	out := make([]ports.DailyHigh, 0, len(body.Days))
	for _, d := range body.Days {
		out = append(out, ports.DailyHigh{Date: d.Datetime, HighCanonical: d.TempMax, Unit: domain.UnitFahrenheit})
	}
	return out, nil
}
