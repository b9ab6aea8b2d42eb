// Package forecast implements the ForecastEngine of spec.md §4.2: parallel
// source fan-out with per-source caching, the bias-correction cascade, the
// weighted ensemble, standard-deviation composition, and the probability
// functions (empirical or normal CDF) used by the Scanner.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arourke/wxengine/internal/calibration"
	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
	"golang.org/x/sync/errgroup"
)

// ErrNoForecast is returned when zero sources produced a finite value for
// a city/date (spec §7: "no opportunity rows, no error surfaced upward" —
// callers are expected to treat this as "skip this city/date", not log it
// as an error).
var ErrNoForecast = errors.New("forecast: no source produced a usable value")

// Config holds the tunables spec §6's `forecasts`/`platforms` sections
// expose.
type Config struct {
	FetchTimeout          time.Duration
	CacheTTL              time.Duration
	OutlierTrimThresholdF float64
	NWSWeightBoost        float64
	GovSourceName         string
}

// DefaultConfig mirrors the literal defaults spec.md names.
func DefaultConfig() Config {
	return Config{
		FetchTimeout:          15 * time.Second,
		CacheTTL:              30 * time.Minute,
		OutlierTrimThresholdF: 8.0,
		NWSWeightBoost:        1.5,
		GovSourceName:         "nws",
	}
}

// Engine is the ForecastEngine.
type Engine struct {
	sources []ports.WeatherSource
	cal     *calibration.Store
	cache   *sourceCache
	cfg     Config
}

// NewEngine wires a fixed source list (up to eight, per spec §4.2) against
// a CalibrationStore.
func NewEngine(sources []ports.WeatherSource, cal *calibration.Store, cfg Config) *Engine {
	return &Engine{sources: sources, cal: cal, cache: newSourceCache(cfg.CacheTTL), cfg: cfg}
}

// GetForecast implements the public contract: fan out to all configured
// sources (skipping the US-government source for non-US cities), join on
// all completing or timing out, trim one outlier, bias-correct, weight,
// and compose the final stddev. Returns ErrNoForecast if no source
// produced a finite value.
func (e *Engine) GetForecast(ctx context.Context, city domain.City, date string) (*domain.Result, error) {
	snapshots, raws, hoursToResolution, err := e.fanOut(ctx, city, date)
	if err != nil {
		return nil, err
	}

	active := make([]rawSample, 0, len(raws))
	for _, r := range raws {
		if !r.shadow {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoForecast
	}

	tables := e.cal.Tables(ctx)
	lead := calibration.BucketForHours(hoursToResolution)

	trimmed, dropped := trimOutliers(raws, e.cfg.OutlierTrimThresholdF)
	if dropped != nil {
		slog.Debug("forecast: outlier dropped", "city", city.Key, "source", dropped.source)
	}

	corrected := biasCorrect(trimmed, tables, city.Key, city.Unit, lead)

	weights := tables.CitySourceWeights[city.Key]
	ensembleF, weighted := weightedAverage(corrected, weights)
	slog.Debug("forecast: ensemble computed", "city", city.Key, "weighted", weighted)

	spreadF := sourceSpreadF(corrected)
	confidence := confidenceFromSpread(spreadF)

	base := e.baseStdDevC(tables, city, confidence)
	dual := city.DualStation
	stdDevC := composeStdDev(base, spreadF, hoursToResolution, dual)

	if !domain.IsFinite(ensembleF) || !domain.IsFinite(stdDevC) || stdDevC <= 0 {
		return nil, fmt.Errorf("forecast: non-finite ensemble result for %s/%s: %w", city.Key, date, ErrNoForecast)
	}

	result := &domain.Result{
		City:              city.Key,
		Date:              date,
		EnsembleTempF:     ensembleF,
		StdDevC:           stdDevC,
		Confidence:        confidence,
		Sources:           snapshots,
		HoursToResolution: hoursToResolution,
		ComputedAt:        time.Now(),
	}

	if city.NWSPriorityVenue != "" && e.cfg.GovSourceName != "" {
		variant := boostedAverage(corrected, weights, e.cfg.GovSourceName, e.cfg.NWSWeightBoost)
		if domain.IsFinite(variant) {
			result.NWSVariantTempF = &variant
		}
	}

	return result, nil
}

// baseStdDevC picks per-city empirical, else pooled per-unit, else the
// hard-coded tier (spec §4.2 stddev selection, step 1 of composeStdDev's
// three-step ordering).
func (e *Engine) baseStdDevC(tables *calibration.Tables, city domain.City, confidence domain.Confidence) float64 {
	toC := func(v float64) float64 {
		if city.Unit == domain.UnitFahrenheit {
			return domain.DeltaFToC(v)
		}
		return v
	}
	if v, ok := tables.CityStdDevs[city.Key]; ok {
		return toC(v)
	}
	if v, ok := tables.PooledResidualStdDev[city.Unit]; ok {
		return toC(v)
	}
	return StdDevTierFallback[confidence]
}

// fanOut fetches every configured source concurrently, joining on all
// completing or the per-source deadline expiring; no partial commit on
// cancellation (spec §5).
func (e *Engine) fanOut(ctx context.Context, city domain.City, date string) ([]domain.SourceSnapshot, []rawSample, float64, error) {
	type result struct {
		snap domain.SourceSnapshot
		raw  rawSample
		ok   bool
	}
	results := make([]result, len(e.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range e.sources {
		i, src := i, src
		if src.Name() == e.cfg.GovSourceName && !city.IsUS {
			continue
		}
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, e.cfg.FetchTimeout)
			defer cancel()

			key := src.Name() + ":" + city.Key
			days, err := e.cache.get(fctx, key, func(ctx context.Context) ([]ports.DailyHigh, error) {
				return src.FetchMultiDay(ctx, city.Lat, city.Lon, city.TZ, 7)
			})
			if err != nil {
				slog.Warn("forecast: source fetch failed", "source", src.Name(), "city", city.Key, "err", err)
				return nil
			}

			var day *ports.DailyHigh
			for j := range days {
				if days[j].Date == date {
					day = &days[j]
					break
				}
			}
			if day == nil || !domain.IsFinite(day.HighCanonical) {
				return nil
			}

			tempF := day.HighCanonical
			if day.Unit == domain.UnitCelsius {
				tempF = domain.CelsiusToFahrenheit(day.HighCanonical)
			}
			results[i] = result{
				snap: domain.SourceSnapshot{
					Source:  src.Name(),
					Unit:    day.Unit,
					RawTemp: day.HighCanonical,
					Shadow:  src.Shadow(),
				},
				raw: rawSample{source: src.Name(), tempF: tempF, shadow: src.Shadow()},
				ok:  true,
			}
			return nil
		})
	}
	_ = g.Wait() // per-source failures are logged and skipped, never aborts the cycle

	var snapshots []domain.SourceSnapshot
	var raws []rawSample
	for _, r := range results {
		if r.ok {
			snapshots = append(snapshots, r.snap)
			raws = append(raws, r.raw)
		}
	}

	hours := hoursToResolutionFor(city, date)
	return snapshots, raws, hours, nil
}

// CalculateProbability implements the public contract: probability that
// the realized temperature falls in [rangeMin, rangeMax] (either bound may
// be nil), via the per-city empirical CDF when available and sufficiently
// sampled, else the normal approximation.
func (e *Engine) CalculateProbability(ctx context.Context, forecastTempNative, stdDevC float64, rangeMin, rangeMax *float64, unit domain.Unit, city string) float64 {
	tables := e.cal.Tables(ctx)
	if pct, ok := tables.CityEmpiricalCDF[city]; ok && len(pct) > 0 {
		return rangeProbability(empiricalCDF(forecastTempNative, pct), rangeMin, rangeMax)
	}
	cdf := normalCDFMixedUnit(forecastTempNative, stdDevC, unit)
	return rangeProbability(cdf, rangeMin, rangeMax)
}

// normalCDFMixedUnit returns cdf(bound)=P(actual<=bound) for a normal
// distribution whose mean is expressed in the market unit (F or C) while
// stdDev is always in °C; the bound-minus-mean delta is converted to °C
// before scaling by stdDevC (absolute-vs-delta conversion rule, spec §3).
func normalCDFMixedUnit(meanNative, stdDevC float64, unit domain.Unit) func(float64) float64 {
	return func(bound float64) float64 {
		deltaNative := bound - meanNative
		deltaC := deltaNative
		if unit == domain.UnitFahrenheit {
			deltaC = domain.DeltaFToC(deltaNative)
		}
		if stdDevC <= 0 {
			if deltaC >= 0 {
				return 1
			}
			return 0
		}
		return phi(deltaC / stdDevC)
	}
}

// Eligibility is the result of GetCityEligibility.
type Eligibility struct {
	MAE            float64
	N              int
	Unit           domain.Unit
	AllowBounded   bool
	AllowUnbounded bool
}

// GetCityEligibility reports whether a city has enough forecast history to
// trade bounded and/or unbounded ranges, per spec §4.1 step 5. Below the
// minimum sample count, everything is allowed (no evidence to gate on).
func (e *Engine) GetCityEligibility(ctx context.Context, city domain.City, cfg calibration.Config) Eligibility {
	tables := e.cal.Tables(ctx)
	mae, hasMAE := tables.CityWeightedMAE[city.Key]
	n := tables.CityWeightedN[city.Key]

	if !hasMAE || n < cfg.EligibilityMinSamples {
		return Eligibility{MAE: mae, N: n, Unit: domain.UnitFahrenheit, AllowBounded: true, AllowUnbounded: true}
	}

	return Eligibility{
		MAE:            mae,
		N:              n,
		Unit:           domain.UnitFahrenheit,
		AllowBounded:   mae <= cfg.BoundedMaxMAEF,
		AllowUnbounded: mae <= cfg.UnboundedMaxMAEF,
	}
}

// hoursToResolutionFor computes hours remaining until the contract
// resolves in the city's local time. date is the YYYY-MM-DD trading date;
// contracts resolve at local midnight ending that date.
func hoursToResolutionFor(city domain.City, date string) float64 {
	loc, err := time.LoadLocation(city.TZ)
	if err != nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return 24
	}
	end := d.AddDate(0, 0, 1)
	h := time.Until(end).Hours()
	if h < 0 {
		return 0
	}
	return h
}
