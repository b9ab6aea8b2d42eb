package domain

import "math"

// isNonFinite reports whether v is NaN or +-Inf. Spec §7: "non-finite
// numeric anywhere: refuse to use that value; never substitute a default."
func isNonFinite(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// IsFinite is the exported counterpart used by other packages that need to
// reject non-finite values at a boundary (e.g. the forecast engine dropping
// a source, or the scanner refusing to log an edge computed from a bad
// probability).
func IsFinite(v float64) bool {
	return !isNonFinite(v)
}
