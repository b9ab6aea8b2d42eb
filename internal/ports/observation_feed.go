package ports

import (
	"context"
	"time"

	"github.com/arourke/wxengine/internal/domain"
)

// Observation is the latest running-high reading for a city/date,
// optionally scoped to a station (dual-station cities query per station to
// avoid cross-station contamination, spec §6).
type Observation struct {
	RunningHighC     float64
	RunningHighF     float64
	WUHighC          float64
	WUHighF          float64
	ObservedAt       time.Time
	ObservationCount int
}

// ObservationFeed serves live station readings to the guaranteed-win
// detector.
type ObservationFeed interface {
	GetLatestObservation(ctx context.Context, city domain.City, date string, stationID string) (*Observation, error)
}
