// Package ports declares the boundary interfaces between the core engine
// (calibration, forecast, scanner, executor, orchestrator) and everything
// spec.md §1 calls an external collaborator: weather APIs, venue adapters,
// persistence, observation feeds and alerts. The core depends only on
// these interfaces; internal/adapters/* provides concrete implementations.
package ports

import (
	"context"

	"github.com/arourke/wxengine/internal/domain"
)

// DailyHigh is one day's high-of-day temperature as reported by a weather
// source.
type DailyHigh struct {
	Date          string // YYYY-MM-DD, source-local calendar date
	HighCanonical float64
	Unit          domain.Unit
}

// WeatherSource is the per-source fetch interface the ForecastEngine fans
// out to (spec §6). Implementations fail with an HTTP error, a parse
// error, or by exceeding their caller-supplied deadline; FetchMultiDay
// returns an error in all three cases rather than a partial result.
type WeatherSource interface {
	// Name identifies the source for cache keys, bias-table lookups and
	// logging (e.g. "gfs", "ecmwf", "nws").
	Name() string

	// Shadow reports whether this source is recorded for calibration but
	// never enters the live ensemble average (spec §4.2).
	Shadow() bool

	FetchMultiDay(ctx context.Context, lat, lon float64, tz string, days int) ([]DailyHigh, error)
}
