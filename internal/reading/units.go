// internal/reading/units.go
package reading

import "math"

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}

// DeciKelvinToCelsius converts a raw 0.1 K sensor word to °C.
func DeciKelvinToCelsius(raw uint16) float64 {
	return Round(float64(raw)/10-273.15, 2)
}

// DeciCelsius converts a signed 0.1 °C sensor word to °C.
func DeciCelsius(raw int16) float64 {
	return float64(raw) / 10
}
