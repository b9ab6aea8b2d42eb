package scanner

import (
	"context"
	"time"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/google/uuid"
)

// GuaranteedWinDetector implements spec §4.3's deterministic-entry path: a
// station has already reported a running high that, with margin, makes a
// YES or NO outcome certain regardless of the remaining forecast — so it
// trades on the observation alone, bypassing the probability model
// entirely.
type GuaranteedWinDetector struct {
	cfg Config
	obs ports.ObservationFeed
}

// NewGuaranteedWinDetector wires the detector against its observation feed.
func NewGuaranteedWinDetector(cfg Config, obs ports.ObservationFeed) *GuaranteedWinDetector {
	return &GuaranteedWinDetector{cfg: cfg, obs: obs}
}

// Detect evaluates one city/date/venue's ranges for a guaranteed win,
// returning at most one YES opportunity (the best-margin candidate) and
// one NO opportunity per qualifying range (same-batch dedup, spec §4.3).
func (d *GuaranteedWinDetector) Detect(ctx context.Context, city domain.City, date string, venue ports.VenueAdapter, ranges []domain.Range, idx *OpenIndex, now time.Time) []domain.Opportunity {
	if !d.cfg.GWEnabled || d.obs == nil {
		return nil
	}

	primaryStation, ok := city.Station(venue.Venue())
	if !ok {
		return nil
	}
	primary, err := d.obs.GetLatestObservation(ctx, city, date, primaryStation)
	if err != nil || primary == nil {
		return nil
	}

	dualConfirmed := false
	if city.DualStation {
		for v := range city.Stations {
			if v == venue.Venue() {
				continue
			}
			if st, ok := city.Station(v); ok {
				if secondary, err := d.obs.GetLatestObservation(ctx, city, date, st); err == nil && secondary != nil {
					dualConfirmed = d.agrees(city, primary, secondary)
				}
			}
			break
		}
	}
	if d.cfg.GWRequireDualConfirmation && city.DualStation && !dualConfirmed {
		return nil
	}

	observedHighF := primary.RunningHighF
	if city.Unit == domain.UnitCelsius {
		observedHighF = domain.CelsiusToFahrenheit(primary.RunningHighC)
	}

	var best *domain.Opportunity
	var noOut []domain.Opportunity

	for _, r := range ranges {
		if r.Validate() != nil {
			continue
		}
		ask := r.Book.BestAsk()
		bid := r.Book.BestBid()

		// YES: observed high already exceeds this range's upper bound (or
		// is below its lower bound) by more than the required gap — the
		// range cannot still resolve YES... unless it's the range the
		// observation sits inside, which is the only YES candidate.
		if d.insideWithMargin(city, r, observedHighF, dualConfirmed) {
			if ask < d.gwMinAsk(dualConfirmed) || ask > d.cfg.GWMaxAsk {
				continue
			}
			if idx.HasPosition(city.Key, date, r.TokenID, domain.SideYes, venue.Venue()) {
				continue
			}
			gapF := d.gapF(city, r, observedHighF)
			opp := d.buildOpp(city, date, r, domain.SideYes, venue.Venue(), ask, bid, now, observedHighF, gapF, dualConfirmed, primaryStation)
			if best == nil || gapF > d.gapF(city, best.Range, observedHighF) {
				best = opp
			}
		}

		// NO: observed high already clears this range's bounds in a
		// direction that guarantees it resolves NO.
		if d.excludedWithMargin(city, r, observedHighF, dualConfirmed) {
			if bid < d.cfg.GWMinBid {
				continue
			}
			noAsk := 1 - bid
			if noAsk < d.gwMinAsk(dualConfirmed) || noAsk > d.cfg.GWMaxAsk {
				continue
			}
			if idx.HasPosition(city.Key, date, r.TokenID, domain.SideNo, venue.Venue()) {
				continue
			}
			gapF := d.gapF(city, r, observedHighF)
			opp := d.buildOpp(city, date, r, domain.SideNo, venue.Venue(), noAsk, 1-ask, now, observedHighF, gapF, dualConfirmed, primaryStation)
			noOut = append(noOut, *opp)
		}
	}

	var out []domain.Opportunity
	if best != nil {
		out = append(out, *best)
	}
	out = append(out, noOut...)
	return out
}

func (d *GuaranteedWinDetector) buildOpp(city domain.City, date string, r domain.Range, side domain.Side, venue domain.Venue, ask, bid float64, now time.Time, observedHighF, gapF float64, dual bool, station string) *domain.Opportunity {
	reason := domain.EntryGuaranteedWinMetar
	if dual {
		reason = domain.EntryGuaranteedWin
	}
	o := &domain.Opportunity{
		ID: uuid.NewString(), City: city.Key, Date: date, Range: r, Side: side,
		Venue: venue, SnapshotAt: now,
		RawProbability: 1, CorrectedProbability: 1, CorrectionRatio: 1,
		Approved:    true,
		EntryReason: reason,
		GW: &domain.GuaranteedWinEntry{
			ObservedHighF:  observedHighF,
			DualConfirmed:  dual,
			MetarOnly:      !dual,
			GapF:           gapF,
			PrimaryStation: station,
		},
	}
	switch side {
	case domain.SideYes:
		o.Yes = &domain.YesOpportunity{Ask: ask}
		o.EdgePct = (1 - ask) * 100
	case domain.SideNo:
		o.No = &domain.NoOpportunity{Ask: ask, Bid: bid}
		o.EdgePct = (1 - ask) * 100
	}
	return o
}

// agrees reports whether two stations' running highs are close enough to
// treat as a dual confirmation (within twice the observation buffer).
func (d *GuaranteedWinDetector) agrees(city domain.City, a, b *ports.Observation) bool {
	af, bf := a.RunningHighF, b.RunningHighF
	if city.Unit == domain.UnitCelsius {
		af, bf = a.RunningHighC, b.RunningHighC
	}
	diff := af - bf
	if diff < 0 {
		diff = -diff
	}
	buffer := d.cfg.ObservationBufferC
	if city.Unit == domain.UnitFahrenheit {
		buffer = d.cfg.ObservationBufferF
	}
	return diff <= buffer*2
}

func (d *GuaranteedWinDetector) gwMinAsk(dual bool) float64 {
	if dual {
		return d.cfg.GWMinAskDualConfirmed
	}
	return d.cfg.GWMinAsk
}

func (d *GuaranteedWinDetector) minGap(city domain.City, dual bool) float64 {
	if dual && city.DualStation {
		return d.cfg.GWMetarOnlyMinGapDualC
	}
	if dual {
		return domain.DeltaFToC(d.cfg.GWMetarOnlyMinGapF)
	}
	return d.cfg.GWMetarOnlyMinGapC
}

// gapF returns the margin, in Fahrenheit, between the observed high and
// the range's nearest bound.
func (d *GuaranteedWinDetector) gapF(city domain.City, r domain.Range, observedHighF float64) float64 {
	switch {
	case r.Max != nil:
		maxF := *r.Max
		if r.Unit == domain.UnitCelsius {
			maxF = domain.CelsiusToFahrenheit(*r.Max)
		}
		g := observedHighF - maxF
		if g < 0 {
			g = -g
		}
		return g
	case r.Min != nil:
		minF := *r.Min
		if r.Unit == domain.UnitCelsius {
			minF = domain.CelsiusToFahrenheit(*r.Min)
		}
		g := minF - observedHighF
		if g < 0 {
			g = -g
		}
		return g
	default:
		return 0
	}
}

// insideWithMargin reports whether the observed high is already inside this
// range's bounds by more than the required gap, meaning the range is
// guaranteed to contain the eventual close as long as the day's high never
// falls back below what's already been observed (a monotonic daily-high
// contract, spec §1).
func (d *GuaranteedWinDetector) insideWithMargin(city domain.City, r domain.Range, observedHighF float64, dual bool) bool {
	gapC := domain.DeltaFToC(d.gapF(city, r, observedHighF))
	minGap := d.minGap(city, dual)
	switch r.Type {
	case domain.RangeUnboundedUpper:
		if r.Min == nil {
			return false
		}
		return observedHighF >= d.nativeBoundF(r, *r.Min) && gapC >= minGap
	case domain.RangeBounded:
		if r.Min == nil || r.Max == nil {
			return false
		}
		minF, maxF := d.nativeBoundF(r, *r.Min), d.nativeBoundF(r, *r.Max)
		return observedHighF >= minF && observedHighF <= maxF &&
			domain.DeltaFToC(maxF-observedHighF) >= minGap
	default:
		return false
	}
}

// excludedWithMargin reports whether the observed high already guarantees
// this range resolves NO: it's strictly outside the range's bounds by more
// than the required gap, and the daily high can only increase from here.
func (d *GuaranteedWinDetector) excludedWithMargin(city domain.City, r domain.Range, observedHighF float64, dual bool) bool {
	minGap := d.minGap(city, dual)
	switch r.Type {
	case domain.RangeBounded:
		if r.Max == nil {
			return false
		}
		maxF := d.nativeBoundF(r, *r.Max)
		return observedHighF > maxF && domain.DeltaFToC(observedHighF-maxF) >= minGap
	case domain.RangeUnboundedUpper:
		if r.Min == nil {
			return false
		}
		minF := d.nativeBoundF(r, *r.Min)
		return observedHighF < minF && domain.DeltaFToC(minF-observedHighF) >= minGap
	case domain.RangeUnboundedLower:
		if r.Max == nil {
			return false
		}
		maxF := d.nativeBoundF(r, *r.Max)
		return observedHighF > maxF && domain.DeltaFToC(observedHighF-maxF) >= minGap
	default:
		return false
	}
}

func (d *GuaranteedWinDetector) nativeBoundF(r domain.Range, bound float64) float64 {
	if r.Unit == domain.UnitCelsius {
		return domain.CelsiusToFahrenheit(bound)
	}
	return bound
}
