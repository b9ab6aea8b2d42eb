package calibration

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/arourke/wxengine/internal/domain"
	"github.com/arourke/wxengine/internal/ports"
)

// Config holds the tunables spec §6's `forecasts` section exposes for the
// source-management and city-eligibility gates.
type Config struct {
	DemotionMAECeilingF   float64 // 4.0
	DemotionMAECeilingC   float64 // 2.0
	RelativeDemotionFactor float64 // 1.8
	MinActiveSources      int     // 2
	SoftDemotionMaxWeight float64 // 0.10
	WeightMinSamples      int     // 3 (step 8, lead bias gate too)

	BoundedMaxMAEF   float64 // 1.8
	BoundedMaxMAEC   float64 // 1.0
	UnboundedMaxMAEF float64 // 2.7
	UnboundedMaxMAEC float64 // 1.5
	EligibilityMinSamples int // below this, allow all (no evidence to gate on)

	ModelCalPooledMinN int // 30
	ModelCalCityMinN   int // 50

	CityStdDevMinSamples   int // per-city empirical stddev eligibility floor
	PooledStdDevMinSamples int // 10
}

// DefaultConfig mirrors the literal thresholds spec §4.1 names.
func DefaultConfig() Config {
	return Config{
		DemotionMAECeilingF:    4.0,
		DemotionMAECeilingC:    2.0,
		RelativeDemotionFactor: 1.8,
		MinActiveSources:       2,
		SoftDemotionMaxWeight:  0.10,
		WeightMinSamples:       3,
		BoundedMaxMAEF:         1.8,
		BoundedMaxMAEC:         1.0,
		UnboundedMaxMAEF:       2.7,
		UnboundedMaxMAEC:       1.5,
		EligibilityMinSamples:  10,
		ModelCalPooledMinN:     30,
		ModelCalCityMinN:       50,
		CityStdDevMinSamples:   20,
		PooledStdDevMinSamples: 10,
	}
}

func key2(a, b string) string       { return a + ":" + b }
func key3(a, b, c string) string    { return a + ":" + b + ":" + c }
func key4(a, b, c, d string) string { return a + ":" + b + ":" + c + ":" + d }

// build runs the 11-step derivation pipeline in the order spec §4.1
// mandates (later steps depend on earlier ones: weights depend on active
// sources, which depend on MAE ranking, which depends on per-city bias).
func build(cfg Config, accuracy []ports.AccuracyRow, resolved []ports.ResolvedOpportunity) *Tables {
	t := empty()

	// Step 1: group by (source, unit); bias = mean(error); pooled
	// residual stddev = sqrt(sum((e-bias)^2)/(n-1)).
	type errGroup struct {
		errs []float64
	}
	bySourceUnit := map[string]*errGroup{}
	for _, r := range accuracy {
		if !domain.IsFinite(r.Error) {
			continue
		}
		k := key2(r.Source, string(r.Unit))
		g := bySourceUnit[k]
		if g == nil {
			g = &errGroup{}
			bySourceUnit[k] = g
		}
		g.errs = append(g.errs, r.Error)
	}
	for k, g := range bySourceUnit {
		if len(g.errs) >= cfg.WeightMinSamples {
			t.Biases[k] = mean(g.errs)
		}
	}
	for _, unit := range []domain.Unit{domain.UnitFahrenheit, domain.UnitCelsius} {
		var pooled []float64
		for k, g := range bySourceUnit {
			if strings.HasSuffix(k, ":"+string(unit)) {
				bias := t.Biases[k]
				for _, e := range g.errs {
					pooled = append(pooled, e-bias)
				}
			}
		}
		if len(pooled) >= cfg.PooledStdDevMinSamples {
			t.PooledResidualStdDev[unit] = residualStdDev(pooled, 0)
		}
	}

	// Step 2: per-city per-source bias and residual MAE.
	type cityGroup struct {
		errs []float64
	}
	byCitySourceUnit := map[string]*cityGroup{}
	for _, r := range accuracy {
		if !domain.IsFinite(r.Error) {
			continue
		}
		k := key3(r.City, r.Source, string(r.Unit))
		g := byCitySourceUnit[k]
		if g == nil {
			g = &cityGroup{}
			byCitySourceUnit[k] = g
		}
		g.errs = append(g.errs, r.Error)
	}
	cityMAE := map[string]map[string]float64{} // city -> source -> MAE
	cityN := map[string]map[string]int{}
	maeUnit := map[string]string{} // city -> unit of its accuracy rows
	for k, g := range byCitySourceUnit {
		parts := strings.SplitN(k, ":", 3)
		city, source := parts[0], parts[1]
		maeUnit[city] = parts[2]
		bias := t.Biases[key2(source, parts[2])]
		if len(g.errs) >= cfg.WeightMinSamples {
			t.CityBiases[k] = mean(g.errs)
		}
		mae := meanAbs(g.errs, bias)
		if cityMAE[city] == nil {
			cityMAE[city] = map[string]float64{}
			cityN[city] = map[string]int{}
		}
		cityMAE[city][source] = mae
		cityN[city][source] = len(g.errs)
	}
	t.CitySourceMAE = cityMAE

	// Step 3 + 4: per-city ranking + demotion/soft-demotion.
	for city, sourceMAE := range cityMAE {
		type ranked struct {
			source string
			mae    float64
		}
		var rs []ranked
		for s, m := range sourceMAE {
			rs = append(rs, ranked{s, m})
		}
		sort.Slice(rs, func(i, j int) bool { return rs[i].mae < rs[j].mae })
		if len(rs) == 0 {
			continue
		}
		bestMAE := rs[0].mae
		relCeiling := bestMAE * cfg.RelativeDemotionFactor
		absCeiling := cfg.DemotionMAECeilingF
		if maeUnit[city] == string(domain.UnitCelsius) {
			absCeiling = cfg.DemotionMAECeilingC
		}

		active := map[string]bool{}
		demoted := map[string]bool{}
		for _, r := range rs {
			overAbs := r.mae > absCeiling
			overRel := r.mae > relCeiling
			if overAbs || overRel {
				demoted[r.source] = true
			} else {
				active[r.source] = true
			}
		}
		soft := map[string]bool{}
		if len(active) < cfg.MinActiveSources {
			// Soft demotion: keep all sources active, cap demoted ones'
			// weight later; record which were soft-demoted.
			for s := range demoted {
				soft[s] = true
				active[s] = true
			}
			demoted = map[string]bool{}
		}
		t.CityActiveSources[city] = active
		t.CitySoftDemoted[city] = soft
	}

	// Step 5: weighted MAE per city (active sources only, n-weighted).
	for city, active := range t.CityActiveSources {
		var sumWN, sumN float64
		for s := range active {
			n := float64(cityN[city][s])
			sumWN += sourceMAEOf(cityMAE, city, s) * n
			sumN += n
		}
		if sumN > 0 {
			t.CityWeightedMAE[city] = sumWN / sumN
			t.CityWeightedN[city] = int(sumN)
		}
	}

	// Step 6: per-city empirical stddev (bias-subtracted residual),
	// falling back to pooled per-unit, falling back to a tier table —
	// the tier fallback itself is applied downstream by the forecast
	// engine, which also knows the confidence label; here we only
	// populate what the history actually supports.
	cityResiduals := map[string][]float64{}
	for k, g := range byCitySourceUnit {
		parts := strings.SplitN(k, ":", 3)
		city := parts[0]
		bias := t.CityBiases[k]
		for _, e := range g.errs {
			cityResiduals[city] = append(cityResiduals[city], e-bias)
		}
	}
	for city, residuals := range cityResiduals {
		if len(residuals) >= cfg.CityStdDevMinSamples {
			t.CityStdDevs[city] = residualStdDev(residuals, 0)
		}
	}

	// Step 7: lead-time-bucketed biases, four buckets, n>=3 to qualify.
	type leadGroup struct{ errs []float64 }
	bySourceUnitLead := map[string]*leadGroup{}
	byCitySourceUnitLead := map[string]*leadGroup{}
	for _, r := range accuracy {
		if !domain.IsFinite(r.Error) || r.Lead == "" {
			continue
		}
		k := key3(r.Source, string(r.Unit), r.Lead)
		g := bySourceUnitLead[k]
		if g == nil {
			g = &leadGroup{}
			bySourceUnitLead[k] = g
		}
		g.errs = append(g.errs, r.Error)

		ck := key4(r.City, r.Source, string(r.Unit), r.Lead)
		cg := byCitySourceUnitLead[ck]
		if cg == nil {
			cg = &leadGroup{}
			byCitySourceUnitLead[ck] = cg
		}
		cg.errs = append(cg.errs, r.Error)
	}
	for k, g := range bySourceUnitLead {
		if len(g.errs) >= cfg.WeightMinSamples {
			t.LeadBiases[k] = mean(g.errs)
		}
	}
	for k, g := range byCitySourceUnitLead {
		if len(g.errs) >= cfg.WeightMinSamples {
			t.CityLeadBiases[k] = mean(g.errs)
		}
	}

	// Step 8: inverse-MAE weights per city, n>=WeightMinSamples,
	// normalized to sum 1, then soft-demotion caps + renormalize.
	for city, active := range t.CityActiveSources {
		weights := map[string]float64{}
		var total float64
		for s := range active {
			if cityN[city][s] < cfg.WeightMinSamples {
				continue
			}
			mae := sourceMAEOf(cityMAE, city, s)
			w := 1.0 / math.Max(mae, 0.1)
			weights[s] = w
			total += w
		}
		if total <= 0 {
			continue
		}
		for s := range weights {
			weights[s] /= total
		}
		applySoftDemotionCap(weights, t.CitySoftDemoted[city], cfg.SoftDemotionMaxWeight)
		t.CitySourceWeights[city] = weights
	}

	// Step 9: market calibration buckets.
	mcAgg := map[string]*winRateAgg{}
	for _, ro := range resolved {
		bucket := marketCalKey(ro.Opp)
		agg := mcAgg[bucket]
		if agg == nil {
			agg = &winRateAgg{}
			mcAgg[bucket] = agg
		}
		agg.n++
		if ro.Outcome {
			agg.wins++
		}
		agg.ask += opportunityAsk(ro.Opp)
	}
	for bucket, agg := range mcAgg {
		winRate := float64(agg.wins) / float64(agg.n)
		avgAsk := agg.ask / float64(agg.n)
		t.MarketCalibration[bucket] = MarketCalibrationEntry{
			EmpiricalWinRate: winRate,
			N:                agg.n,
			TrueEdge:         winRate - avgAsk,
		}
	}

	// Step 10: model calibration (correction ratios). Pooled needs
	// n>=30; city-specific needs n>=50 to win over pooled.
	type modelAgg struct {
		sumActual float64
		sumModel  float64
		n         int
	}
	pooledAgg := map[string]*modelAgg{}
	cityAgg := map[string]*modelAgg{}
	for _, ro := range resolved {
		rangeType := string(ro.Opp.Range.Type)
		bucket := probBucket(ro.Opp.RawProbability)
		pk := key2(rangeType, bucket)
		ck := ro.Opp.City + "|" + pk

		outcome := 0.0
		if ro.Outcome {
			outcome = 1.0
		}
		pa := pooledAgg[pk]
		if pa == nil {
			pa = &modelAgg{}
			pooledAgg[pk] = pa
		}
		pa.sumActual += outcome
		pa.sumModel += ro.Opp.RawProbability
		pa.n++

		ca := cityAgg[ck]
		if ca == nil {
			ca = &modelAgg{}
			cityAgg[ck] = ca
		}
		ca.sumActual += outcome
		ca.sumModel += ro.Opp.RawProbability
		ca.n++
	}
	for pk, pa := range pooledAgg {
		if pa.n >= cfg.ModelCalPooledMinN && pa.sumModel > 0 {
			t.ModelCalibration[pk] = ModelCalibrationEntry{
				CorrectionRatio: (pa.sumActual / float64(pa.n)) / (pa.sumModel / float64(pa.n)),
				N:               pa.n,
			}
		}
	}
	for ck, ca := range cityAgg {
		if ca.n >= cfg.ModelCalCityMinN && ca.sumModel > 0 {
			t.ModelCalibration[ck] = ModelCalibrationEntry{
				CorrectionRatio: (ca.sumActual / float64(ca.n)) / (ca.sumModel / float64(ca.n)),
				N:               ca.n,
			}
		}
	}

	// Step 11: per-city empirical CDF, 19-point percentile table.
	for city, residuals := range cityResiduals {
		if len(residuals) < cfg.EligibilityMinSamples {
			continue
		}
		t.CityEmpiricalCDF[city] = percentileTable(residuals)
	}

	return t
}

type winRateAgg struct {
	n    int
	wins int
	ask  float64
}

func sourceMAEOf(cityMAE map[string]map[string]float64, city, source string) float64 {
	if m, ok := cityMAE[city]; ok {
		return m[source]
	}
	return 0
}

// applySoftDemotionCap caps any soft-demoted source's weight at maxWeight,
// redistributing the overflow proportionally to the non-capped sources
// (spec §4.1 step 4/8).
func applySoftDemotionCap(weights map[string]float64, soft map[string]bool, maxWeight float64) {
	if len(soft) == 0 {
		return
	}
	var overflow float64
	for s := range soft {
		if w, ok := weights[s]; ok && w > maxWeight {
			overflow += w - maxWeight
			weights[s] = maxWeight
		}
	}
	if overflow <= 0 {
		return
	}
	var otherTotal float64
	for s, w := range weights {
		if !soft[s] {
			otherTotal += w
		}
	}
	if otherTotal <= 0 {
		return
	}
	for s, w := range weights {
		if !soft[s] {
			weights[s] = w + overflow*(w/otherTotal)
		}
	}
}

// marketCalKey builds the bucket key: venue|rangeType|leadBucket|priceBucket[|city].
// Historical opportunities already carry the bucket key they were
// evaluated under (CalibrationBucketKey); reuse it so the aggregation
// joins against the exact same bucket the live scanner will query.
func marketCalKey(o domain.Opportunity) string {
	if o.CalibrationBucketKey != "" {
		return o.CalibrationBucketKey
	}
	price := priceBucket(opportunityAsk(o))
	return fmt.Sprintf("%s|%s|%s|%s", o.Venue, o.Range.Type, LeadSameDay, price)
}

func opportunityAsk(o domain.Opportunity) float64 {
	if o.Side == domain.SideYes && o.Yes != nil {
		return o.Yes.Ask
	}
	if o.Side == domain.SideNo && o.No != nil {
		return o.No.Ask
	}
	return 0
}

// priceBucket buckets a 0-1 ask into 5-cent-wide buckets from 0c to 55c,
// plus "55c+" (spec §4.1 step 9).
func priceBucket(ask float64) string {
	cents := ask * 100
	if cents >= 55 {
		return "55c+"
	}
	if cents < 0 {
		cents = 0
	}
	lo := int(cents/5) * 5
	return fmt.Sprintf("%d-%dc", lo, lo+5)
}

// probBucket buckets a 0-1 probability into 5-percentage-point buckets up
// to 75% (spec §4.1 step 10).
func probBucket(p float64) string {
	pct := p * 100
	if pct >= 75 {
		return "75+"
	}
	if pct < 0 {
		pct = 0
	}
	lo := int(pct/5) * 5
	return fmt.Sprintf("%d-%d", lo, lo+5)
}

// PriceBucket is the exported form of priceBucket, used by the Scanner to
// build the same bucket key live opportunities are tagged with.
func PriceBucket(ask float64) string { return priceBucket(ask) }

// ProbBucket is the exported form of probBucket.
func ProbBucket(p float64) string { return probBucket(p) }

// MarketCalKey builds the "venue|rangeType|leadBucket|priceBucket" bucket
// key the live Scanner tags every opportunity with, and that build()'s
// market-calibration aggregation joins against (spec §4.1 step 9).
func MarketCalKey(venue domain.Venue, rangeType domain.RangeType, lead LeadBucket, ask float64) string {
	return fmt.Sprintf("%s|%s|%s|%s", venue, rangeType, lead, priceBucket(ask))
}

// ModelCalKeyCity builds the city-specific model-calibration key.
func ModelCalKeyCity(city string, rangeType domain.RangeType, prob float64) string {
	return city + "|" + key2(string(rangeType), probBucket(prob))
}

// ModelCalKeyPooled builds the pooled model-calibration key.
func ModelCalKeyPooled(rangeType domain.RangeType, prob float64) string {
	return key2(string(rangeType), probBucket(prob))
}

// percentileTable returns the 19-point (5,10,...,95) percentile table of
// the given residuals.
func percentileTable(residuals []float64) []float64 {
	sorted := append([]float64(nil), residuals...)
	sort.Float64s(sorted)
	table := make([]float64, 19)
	for i := 0; i < 19; i++ {
		p := float64((i + 1) * 5)
		table[i] = percentile(sorted, p)
	}
	return table
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100.0) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func meanAbs(xs []float64, bias float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += math.Abs(x - bias)
	}
	return sum / float64(len(xs))
}

// residualStdDev computes sqrt(sum((e-center)^2)/(n-1)).
func residualStdDev(residuals []float64, center float64) float64 {
	if len(residuals) < 2 {
		return 0
	}
	var sum float64
	for _, e := range residuals {
		d := e - center
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(residuals)-1))
}
