package domain

import "time"

// Venue identifies one of the two trading venues a range trades on.
type Venue string

// City is the static descriptor for a trading location. Loaded once from
// configuration; never mutated at runtime.
type City struct {
	Key      string
	Name     string
	Lat      float64
	Lon      float64
	TZ       string // IANA time zone, e.g. "America/Chicago"
	Unit     Unit   // market unit: contracts on this city quote in this unit
	Stations map[Venue]string

	// IsUS gates the single US-government weather source, which only
	// fetches for US cities (spec §4.2 fan-out).
	IsUS bool

	// DualStation is true when Stations has more than one distinct value
	// across venues — the two trading venues resolve against different
	// weather stations, which injects extra residual uncertainty.
	DualStation bool

	// NWSPriorityVenue, if non-empty, is the venue for which this city's
	// forecast should also be computed with the US-government source's
	// weight boosted (the "platform-specific variant", spec §4.2).
	NWSPriorityVenue Venue
}

// Station returns the station id configured for a venue, and whether one
// was configured at all.
func (c City) Station(v Venue) (string, bool) {
	s, ok := c.Stations[v]
	return s, ok && s != ""
}

// TodayIn returns the current trading date ("2006-01-02") in the named IANA
// time zone. Falls back to UTC if the zone can't be loaded.
func TodayIn(tz string) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}
