// Package allocation distributes capital across instruments: the initial
// strategic-weight split and the proportional capital distribution (PCD) of
// available cash across simultaneous buy signals.
package allocation

import "github.com/aristath/graham/pkg/formulas"

// BuyCandidate is an instrument that produced a BUY signal on a given day.
type BuyCandidate struct {
	Ticker         string  `json:"ticker"`
	IntrinsicValue float64 `json:"intrinsic_value"`
	Price          float64 `json:"price"`
	BuyPrice       float64 `json:"buy_price"`
	WPP            float64 `json:"wpp"`
}

// Discount is how many times the price fits in the intrinsic value.
func (c BuyCandidate) Discount() float64 {
	if c.Price <= 0 {
		return 0
	}
	return c.IntrinsicValue / c.Price
}

// Allocation is the cash assigned to one candidate.
type Allocation struct {
	Ticker string  `json:"ticker"`
	Amount float64 `json:"amount"`
	PCD    float64 `json:"pcd"` // Fraction of the distributed cash, 0..1
}

// CalculateWPP calculates the Weighted Purchase Priority
//
//	WPP = (IV / Price) x SW
//
// Example:
//
//	Stock A: IV = 100, Price = 40, SW = 90 -> 2.5 x 90 = 225
//	Stock B: IV = 50, Price = 20, SW = 50  -> 2.5 x 50 = 125
//
// Returns 0 when either the value or the price is not positive.
func CalculateWPP(intrinsicValue, currentPrice, strategicWeight float64) float64 {
	if intrinsicValue <= 0 || currentPrice <= 0 {
		return 0
	}
	return formulas.Round2(intrinsicValue / currentPrice * strategicWeight)
}

// AllocateCapitalByWPP splits totalCash across candidates in proportion to WPP
//
//	PCD_i = WPP_i / sum(WPP)
//	Capital_i = PCD_i x totalCash
//
// Allocations keep candidate order. Candidates with a non-positive WPP receive
// nothing. Returns nil when there is no cash or no positive score.
func AllocateCapitalByWPP(candidates []BuyCandidate, totalCash float64) []Allocation {
	if totalCash <= 0 {
		return nil
	}

	totalWPP := 0.0
	for _, c := range candidates {
		if c.WPP > 0 {
			totalWPP += c.WPP
		}
	}
	if totalWPP <= 0 {
		return nil
	}

	allocations := make([]Allocation, 0, len(candidates))
	for _, c := range candidates {
		if c.WPP <= 0 {
			continue
		}
		pcd := c.WPP / totalWPP
		allocations = append(allocations, Allocation{
			Ticker: c.Ticker,
			Amount: pcd * totalCash,
			PCD:    pcd,
		})
	}

	return allocations
}
