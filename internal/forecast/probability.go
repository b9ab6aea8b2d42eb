package forecast

import "math"

// erf approximates the error function using the Abramowitz & Stegun 7.1.26
// rational approximation (max error ~1.5e-7). Spec §4.2 numerical policy:
// "the correct form is z = |x|/√2; y ≈ 1 − Σ·exp(−z²)"; an earlier
// "missing √2" variant is a known bug and is not replicated here.
func erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	t := 1.0 / (1.0 + p*x)
	poly := ((((a5*t+a4)*t+a3)*t+a2)*t + a1) * t
	y := 1.0 - poly*math.Exp(-x*x)
	return sign * y
}

// phi is the standard normal CDF, evaluated via erf. Input is clamped to
// ±8 before evaluation (spec §4.2).
func phi(x float64) float64 {
	if x > 8 {
		x = 8
	}
	if x < -8 {
		x = -8
	}
	return 0.5 * (1.0 + erf(x/math.Sqrt2))
}

// normalCDF returns a cdf-at-bound function for a normal(mean, stdDev)
// distribution, in the same unit as mean/stdDev.
func normalCDF(mean, stdDev float64) func(bound float64) float64 {
	return func(bound float64) float64 {
		if stdDev <= 0 {
			if bound >= mean {
				return 1
			}
			return 0
		}
		return phi((bound - mean) / stdDev)
	}
}

// empiricalCDF returns a cdf-at-bound function built from a 19-point
// (5,10,...,95) percentile table of signed forecast error
// (error = forecast - actual) in the city's native unit, for a given
// forecast temperature forecastTemp in that same unit. actual <= bound
// iff error >= forecastTemp-bound, so
// P(actual<=bound) = 1 - F_error(forecastTemp-bound), where F_error is
// built by inverting the percentile table (value -> fraction).
func empiricalCDF(forecastTemp float64, percentiles []float64) func(bound float64) float64 {
	return func(bound float64) float64 {
		v := forecastTemp - bound
		return 1.0 - errorCDFAt(v, percentiles)
	}
}

// errorCDFAt inverts the ascending 19-point percentile table (covering
// the 5th through 95th percentile) to estimate the fraction of historical
// errors <= v. Below the lowest percentile value: 0.025. Above the
// highest: 0.975. Inside: linear interpolation between bracketing
// percentiles (spec §4.2).
func errorCDFAt(v float64, percentiles []float64) float64 {
	n := len(percentiles)
	if n == 0 {
		return 0.5
	}
	if v <= percentiles[0] {
		return 0.025
	}
	if v >= percentiles[n-1] {
		return 0.975
	}
	for i := 0; i < n-1; i++ {
		lo, hi := percentiles[i], percentiles[i+1]
		if v >= lo && v <= hi {
			loPct := float64(i+1) * 5.0
			hiPct := float64(i+2) * 5.0
			if hi == lo {
				return loPct / 100.0
			}
			frac := (v - lo) / (hi - lo)
			return (loPct + frac*(hiPct-loPct)) / 100.0
		}
	}
	return 0.5
}

// rangeProbability computes P(rangeMin <= actual <= rangeMax) (with either
// bound possibly nil, meaning unbounded on that side) from a cdf-at-bound
// function cdf(bound) = P(actual<=bound). This single expression matches
// all three cases spec §4.2 lists (unbounded-upper, unbounded-lower,
// bounded) because both the normal and empirical paths expose the same
// cdf-at-bound shape.
func rangeProbability(cdf func(float64) float64, rangeMin, rangeMax *float64) float64 {
	switch {
	case rangeMin == nil && rangeMax == nil:
		// Should not exist per the range invariant; if constructed
		// anyway, spec's boundary behavior says probability = 1.
		return 1.0
	case rangeMin != nil && rangeMax == nil:
		// unbounded-upper: "X or higher"
		return clip01(1.0 - cdf(*rangeMin))
	case rangeMin == nil && rangeMax != nil:
		// unbounded-lower: "X or lower"
		return clip01(cdf(*rangeMax))
	default:
		return clip01(cdf(*rangeMax) - cdf(*rangeMin))
	}
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
