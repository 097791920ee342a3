package formulas

import "math"

// CalculateCAGR calculates the compound annual growth rate between two values
// observed yearsElapsed years apart.
//
// Formula: CAGR = (final / initial)^(1/years) - 1
//
// Returns nil when either value is non-positive or no time has elapsed,
// because the growth rate is undefined there.
func CalculateCAGR(initial, final, yearsElapsed float64) *float64 {
	if initial <= 0 || final <= 0 || yearsElapsed <= 0 {
		return nil
	}

	cagr := math.Pow(final/initial, 1/yearsElapsed) - 1
	return &cagr
}
