package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/forecast"
	"github.com/arourke/wxengine/internal/ports"
	"github.com/google/uuid"
)

// Scanner is the Opportunity Scanner of spec.md §4.3.
type Scanner struct {
	cfg      Config
	calCfg   calibration.Config
	forecast *forecast.Engine
	venues   map[domain.Venue]ports.VenueAdapter
	trades   ports.TradeStore
	opps     ports.OpportunityStore
	cal      *calibration.Store
	obs      ports.ObservationFeed
}

// New wires a Scanner against its dependencies.
func New(cfg Config, calCfg calibration.Config, eng *forecast.Engine, venues map[domain.Venue]ports.VenueAdapter, trades ports.TradeStore, opps ports.OpportunityStore, cal *calibration.Store, obs ports.ObservationFeed) *Scanner {
	return &Scanner{cfg: cfg, calCfg: calCfg, forecast: eng, venues: venues, trades: trades, opps: opps, cal: cal, obs: obs}
}

// OpenIndex is the pre-pass position index built once per Scan call from
// the current open trades, so every per-range evaluation is an O(1)
// membership check rather than a store round-trip (spec §4.3 pre-pass).
type OpenIndex struct {
	positions     map[string]bool            // city|date|tokenID|side|venue
	openYesRanges map[string][]domain.Range  // city|date|venue -> open YES ranges (for adjacent-NO + opposite-side blocking)
	openNoRanges  map[string][]domain.Range  // city|date|venue -> open NO ranges
}

func BuildOpenIndex(trades []domain.Trade) *OpenIndex {
	idx := &OpenIndex{
		positions:     map[string]bool{},
		openYesRanges: map[string][]domain.Range{},
		openNoRanges:  map[string][]domain.Range{},
	}
	for _, t := range trades {
		if t.State != domain.TradeOpen {
			continue
		}
		posKey := fmt.Sprintf("%s|%s|%s|%s|%s", t.City, t.Date, t.Range.TokenID, t.Side, t.Venue)
		idx.positions[posKey] = true

		cdKey := fmt.Sprintf("%s|%s|%s", t.City, t.Date, t.Venue)
		if t.Side == domain.SideYes {
			idx.openYesRanges[cdKey] = append(idx.openYesRanges[cdKey], t.Range)
		} else {
			idx.openNoRanges[cdKey] = append(idx.openNoRanges[cdKey], t.Range)
		}
	}
	return idx
}

func (idx *OpenIndex) HasPosition(city, date, tokenID string, side domain.Side, venue domain.Venue) bool {
	return idx.positions[fmt.Sprintf("%s|%s|%s|%s|%s", city, date, tokenID, side, venue)]
}

func (idx *OpenIndex) OpenOppositeSide(city, date string, venue domain.Venue, tokenID string, side domain.Side) bool {
	cdKey := fmt.Sprintf("%s|%s|%s", city, date, venue)
	var ranges []domain.Range
	if side == domain.SideYes {
		ranges = idx.openNoRanges[cdKey]
	} else {
		ranges = idx.openYesRanges[cdKey]
	}
	for _, r := range ranges {
		if r.TokenID == tokenID {
			return true
		}
	}
	return false
}

// AdjacentYesBlocked reports whether any open YES position's range bound is
// within ObservationBufferF of this NO range's near bound — spec §4.3's
// adjacent-NO protection, comparison inclusive (<=, Open-Question decision).
func (idx *OpenIndex) AdjacentYesBlocked(city, date string, venue domain.Venue, r domain.Range, cfg Config) bool {
	cdKey := fmt.Sprintf("%s|%s|%s", city, date, venue)
	for _, y := range idx.openYesRanges[cdKey] {
		if y.Min == nil {
			continue
		}
		var nearBound float64
		switch {
		case r.Max != nil:
			nearBound = *r.Max
		case r.Min != nil:
			nearBound = *r.Min
		default:
			continue
		}
		if absF(*y.Min-nearBound) <= cfg.ObservationBufferF {
			return true
		}
	}
	return false
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Scan evaluates every configured city for the given trading dates,
// producing a persisted, append-only log of opportunities and returning the
// approved ones.
func (s *Scanner) Scan(ctx context.Context, cities []domain.City, dates []string) ([]domain.Opportunity, error) {
	openTrades, err := s.trades.GetOpenTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner: loading open trades: %w", err)
	}
	idx := BuildOpenIndex(openTrades)

	var approved []domain.Opportunity
	now := time.Now()

	for _, city := range cities {
		for _, date := range dates {
			result, err := s.forecast.GetForecast(ctx, city, date)
			if err != nil {
				slog.Debug("scanner: no forecast", "city", city.Key, "date", date, "err", err)
				continue
			}

			for venueName, venue := range s.venues {
				ranges, err := venue.GetMarkets(ctx, city, date)
				if err != nil {
					slog.Warn("scanner: GetMarkets failed", "venue", venueName, "city", city.Key, "date", date, "err", err)
					continue
				}
				if len(ranges) == 0 {
					continue
				}

				yesOpp := s.evaluateYes(ctx, city, date, result, venue, ranges, idx, now)
				if yesOpp != nil {
					if err := s.opps.SaveOpportunity(ctx, *yesOpp); err != nil {
						slog.Warn("scanner: save opportunity failed", "err", err)
					}
					if yesOpp.Approved {
						approved = append(approved, *yesOpp)
					}
				}

				noOpp := s.evaluateNo(ctx, city, date, result, venue, ranges, idx, now)
				if noOpp != nil {
					if err := s.opps.SaveOpportunity(ctx, *noOpp); err != nil {
						slog.Warn("scanner: save opportunity failed", "err", err)
					}
					if noOpp.Approved {
						approved = append(approved, *noOpp)
					}
				}
			}
		}
	}

	return approved, nil
}

// evaluateYes scores every candidate range within YesMaxForecastDistance
// stddevs of the ensemble mean, evaluates the top YesCandidateCount (ranked
// by corrected-probability minus ask, ties broken by lower RangeMin per the
// Open-Question decision) and returns the first that passes the filter
// chain. Always returns an opportunity row (approved or not) for the best
// candidate evaluated, or nil if there were no candidates in range.
func (s *Scanner) evaluateYes(ctx context.Context, city domain.City, date string, fr *domain.Result, venue ports.VenueAdapter, ranges []domain.Range, idx *OpenIndex, now time.Time) *domain.Opportunity {
	tables := s.cal.Tables(ctx)
	lead := calibration.BucketForHours(fr.HoursToResolution)

	type candidate struct {
		r    domain.Range
		prob float64
	}
	var candidates []candidate
	for _, r := range ranges {
		if r.Validate() != nil {
			continue
		}
		dist := rangeDistanceStdDevs(r, fr)
		if dist > s.cfg.YesMaxForecastDistance {
			continue
		}
		prob := s.forecast.CalculateProbability(ctx, fr.EnsembleTempF, fr.StdDevC, r.Min, r.Max, r.Unit, city.Key)
		candidates = append(candidates, candidate{r: r, prob: prob})
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		si := candidates[i].r.Book.BestAsk()
		sj := candidates[j].r.Book.BestAsk()
		scoreI := candidates[i].prob - si
		scoreJ := candidates[j].prob - sj
		if scoreI != scoreJ {
			return scoreI > scoreJ
		}
		minI, minJ := boundOrZero(candidates[i].r.Min), boundOrZero(candidates[j].r.Min)
		return minI < minJ
	})

	n := s.cfg.YesCandidateCount
	if n <= 0 || n > len(candidates) {
		n = len(candidates)
	}

	var best *domain.Opportunity
	for _, c := range candidates[:n] {
		r := c.r
		ask := r.Book.BestAsk()
		if ask <= 0 {
			continue
		}

		correctionRatio, corrected := applyModelCalibration(tables, city.Key, r.Type, c.prob)
		edgePct := (corrected - ask) * 100
		kelly := kellyFraction(corrected, ask, venue.GetEntryFee(ask))

		divergenceC := marketDivergenceC(r, fr)
		stdRatio := 0.0
		if r.Type == domain.RangeBounded && r.Width() > 0 {
			stdRatio = fr.StdDevC / domain.DeltaFToC(r.Width())
			if stdRatio < 0 {
				stdRatio = -stdRatio
			}
		}

		obsBlocked := s.observationBlocksYes(ctx, city, date, r)

		calBucket, calKey, calOK := marketCalBucketFor(tables, venue.Venue(), r.Type, lead, ask)

		in := evalInput{
			Venue: venue.Venue(), City: city, Range: r, Side: domain.SideYes,
			Forecast: fr, Ask: ask, Bid: r.Book.BestBid(), Spread: r.Book.Spread(), Volume: r.Volume,
			CorrectedProb: corrected, EdgePct: edgePct,
			MarketDivergenceC: divergenceC, StdRangeRatio: stdRatio, ObservationBlocked: obsBlocked,
			CalBucket: calBucket, CalBucketOK: calOK,
		}

		fres := runFilters(s.cfg, in)

		opp := &domain.Opportunity{
			ID: uuid.NewString(), City: city.Key, Date: date, Range: r, Side: domain.SideYes,
			Venue: venue.Venue(), SnapshotAt: now,
			RawProbability: c.prob, CorrectedProbability: corrected, CorrectionRatio: correctionRatio,
			EdgePct: edgePct, KellyFraction: kelly,
			MarketImpliedDivergence: divergenceC,
			CalibrationBucketKey: calKey,
			Yes: &domain.YesOpportunity{Ask: ask, StdDevToRangeRatio: stdRatio, ObservationBlocked: obsBlocked},
		}
		if idx.HasPosition(city.Key, date, r.TokenID, domain.SideYes, venue.Venue()) || idx.OpenOppositeSide(city.Key, date, venue.Venue(), r.TokenID, domain.SideNo) {
			opp.Approved = false
			opp.FilterReason = ReasonExistingPosition
		} else {
			opp.Approved = fres.approved
			if fres.approved && fres.calBypass {
				opp.EntryReason = domain.EntryCalConfirms
				if opp.KellyFraction <= 0 && calOK {
					opp.KellyFraction = kellyFraction(calBucket.EmpiricalWinRate, ask, venue.GetEntryFee(ask))
				}
			} else if fres.approved {
				opp.EntryReason = domain.EntryNormal
			} else {
				opp.FilterReason = joinReasons(fres.reasons)
			}
		}

		if best == nil {
			best = opp
		}
		if opp.Approved {
			return opp
		}
	}
	return best
}

// evaluateNo evaluates every range's NO side and approves the single
// highest-edge passer for this city/date/venue.
func (s *Scanner) evaluateNo(ctx context.Context, city domain.City, date string, fr *domain.Result, venue ports.VenueAdapter, ranges []domain.Range, idx *OpenIndex, now time.Time) *domain.Opportunity {
	tables := s.cal.Tables(ctx)
	lead := calibration.BucketForHours(fr.HoursToResolution)

	var best *domain.Opportunity
	for _, r := range ranges {
		if r.Validate() != nil {
			continue
		}
		yesAsk := r.Book.BestAsk()
		yesBid := r.Book.BestBid()
		if yesAsk <= 0 && yesBid <= 0 {
			continue
		}
		noAsk := 1 - yesBid
		noBid := 1 - yesAsk

		yesProb := s.forecast.CalculateProbability(ctx, fr.EnsembleTempF, fr.StdDevC, r.Min, r.Max, r.Unit, city.Key)
		rawNoProb := 1 - yesProb

		correctionRatio, corrected := applyModelCalibration(tables, city.Key, r.Type, rawNoProb)
		edgePct := (corrected - noAsk) * 100
		kelly := kellyFraction(corrected, noAsk, venue.GetEntryFee(noAsk))

		adjBlocked := idx.AdjacentYesBlocked(city.Key, date, venue.Venue(), r, s.cfg)

		calBucket, calKey, calOK := marketCalBucketFor(tables, venue.Venue(), r.Type, lead, noAsk)

		in := evalInput{
			Venue: venue.Venue(), City: city, Range: r, Side: domain.SideNo,
			Forecast: fr, Ask: noAsk, Bid: noBid, Spread: r.Book.Spread(), Volume: r.Volume,
			CorrectedProb: corrected, EdgePct: edgePct,
			CalBucket: calBucket, CalBucketOK: calOK,
		}
		fres := runFilters(s.cfg, in)

		opp := &domain.Opportunity{
			ID: uuid.NewString(), City: city.Key, Date: date, Range: r, Side: domain.SideNo,
			Venue: venue.Venue(), SnapshotAt: now,
			RawProbability: rawNoProb, CorrectedProbability: corrected, CorrectionRatio: correctionRatio,
			EdgePct: edgePct, KellyFraction: kelly,
			CalibrationBucketKey: calKey,
			No: &domain.NoOpportunity{Ask: noAsk, Bid: noBid, AdjacentYesBlocked: adjBlocked},
		}

		switch {
		case idx.HasPosition(city.Key, date, r.TokenID, domain.SideNo, venue.Venue()) || idx.OpenOppositeSide(city.Key, date, venue.Venue(), r.TokenID, domain.SideYes):
			opp.Approved = false
			opp.FilterReason = ReasonExistingPosition
		case adjBlocked:
			opp.Approved = false
			opp.FilterReason = ReasonAdjacentNo
		default:
			opp.Approved = fres.approved
			if fres.approved && fres.calBypass {
				opp.EntryReason = domain.EntryCalConfirms
				if opp.KellyFraction <= 0 && calOK {
					opp.KellyFraction = kellyFraction(calBucket.EmpiricalWinRate, noAsk, venue.GetEntryFee(noAsk))
				}
			} else if fres.approved {
				opp.EntryReason = domain.EntryNormal
			} else {
				opp.FilterReason = joinReasons(fres.reasons)
			}
		}

		if best == nil || (opp.Approved && !best.Approved) || (opp.Approved == best.Approved && opp.EdgePct > best.EdgePct) {
			best = opp
		}
	}
	if best != nil && !best.Approved {
		best.FilterReason = appendReason(best.FilterReason, ReasonNotBestNo)
	}
	return best
}

func (s *Scanner) observationBlocksYes(ctx context.Context, city domain.City, date string, r domain.Range) bool {
	if s.obs == nil || r.Type != domain.RangeBounded || r.Max == nil {
		return false
	}
	stationID, ok := city.Station(r.Venue)
	if !ok {
		return false
	}
	obsRes, err := s.obs.GetLatestObservation(ctx, city, date, stationID)
	if err != nil || obsRes == nil {
		return false
	}
	buffer := s.cfg.ObservationBufferF
	if city.Unit == domain.UnitCelsius {
		return obsRes.RunningHighC > *r.Max+domain.DeltaFToC(buffer)
	}
	return obsRes.RunningHighF > *r.Max+buffer
}

func rangeDistanceStdDevs(r domain.Range, fr *domain.Result) float64 {
	if fr.StdDevC <= 0 {
		return 0
	}
	deltaNative := r.Reference() - fr.EnsembleTempF
	deltaC := deltaNative
	if r.Unit == domain.UnitFahrenheit {
		deltaC = domain.DeltaFToC(deltaNative)
	}
	if deltaC < 0 {
		deltaC = -deltaC
	}
	return deltaC / fr.StdDevC
}

func marketDivergenceC(r domain.Range, fr *domain.Result) float64 {
	marketMid := r.Reference()
	deltaNative := marketMid - fr.EnsembleTempF
	deltaC := deltaNative
	if r.Unit == domain.UnitFahrenheit {
		deltaC = domain.DeltaFToC(deltaNative)
	}
	if deltaC < 0 {
		deltaC = -deltaC
	}
	return deltaC
}

func applyModelCalibration(tables *calibration.Tables, city string, rangeType domain.RangeType, prob float64) (float64, float64) {
	if e, ok := tables.ModelCalibration[calibration.ModelCalKeyCity(city, rangeType, prob)]; ok && e.N > 0 {
		return e.CorrectionRatio, clip01(prob * e.CorrectionRatio)
	}
	if e, ok := tables.ModelCalibration[calibration.ModelCalKeyPooled(rangeType, prob)]; ok && e.N > 0 {
		return e.CorrectionRatio, clip01(prob * e.CorrectionRatio)
	}
	return 1, prob
}

func clip01(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

func marketCalBucketFor(tables *calibration.Tables, venue domain.Venue, rangeType domain.RangeType, lead calibration.LeadBucket, price float64) (calibration.MarketCalibrationEntry, string, bool) {
	key := calibration.MarketCalKey(venue, rangeType, lead, price)
	e, ok := tables.MarketCalibration[key]
	return e, key, ok
}

// kellyFraction computes the unscaled Kelly fraction for a binary bet
// bought at price `ask` plus the venue's per-contract entry `fee`, with
// model probability `p`. effectiveCost = ask+fee is what is actually
// staked per contract; b is the net-odds payoff per dollar of that stake
// (spec §4.4 step 6). The Executor applies fractional scaling and
// bankroll/exposure caps on top of this.
func kellyFraction(p, ask, fee float64) float64 {
	effectiveCost := ask + fee
	if effectiveCost <= 0 || effectiveCost >= 1 {
		return 0
	}
	netProfit := 1 - effectiveCost
	b := netProfit / effectiveCost
	f := (b*p - (1 - p)) / b
	if f < 0 || !domain.IsFinite(f) {
		return 0
	}
	return f
}

func boundOrZero(b *float64) float64 {
	if b == nil {
		return 0
	}
	return *b
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ","
		}
		out += r
	}
	return out
}

func appendReason(existing, reason string) string {
	if existing == "" {
		return reason
	}
	return existing + "," + reason
}
