package formulas

import "github.com/shopspring/decimal"

// Round rounds value to the given number of decimal places, half away from zero,
// using the shortest decimal representation of the float.
func Round(value float64, places int32) float64 {
	return decimal.NewFromFloat(value).Round(places).InexactFloat64()
}

// Round2 rounds to cents.
func Round2(value float64) float64 {
	return Round(value, 2)
}
