// Package domain holds the core types shared by every subsystem: cities,
// contracts, forecasts, opportunities and trades. Nothing in here performs
// I/O.
package domain

// CelsiusToFahrenheit applies the full affine conversion (absolute
// temperature, not a delta).
func CelsiusToFahrenheit(c float64) float64 {
	return c*9.0/5.0 + 32.0
}

// FahrenheitToCelsius applies the full affine conversion (absolute
// temperature, not a delta).
func FahrenheitToCelsius(f float64) float64 {
	return (f - 32.0) * 5.0 / 9.0
}

// DeltaFToC converts a temperature *difference* (no offset).
func DeltaFToC(deltaF float64) float64 {
	return deltaF * 5.0 / 9.0
}

// DeltaCToF converts a temperature *difference* (no offset).
func DeltaCToF(deltaC float64) float64 {
	return deltaC * 9.0 / 5.0
}

// Unit is a temperature unit tag used throughout the calibration and
// forecast tables, which key on unit as well as source/city.
type Unit string

const (
	UnitFahrenheit Unit = "F"
	UnitCelsius    Unit = "C"
)
