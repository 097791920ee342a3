package valuation

import "github.com/aristath/graham/pkg/formulas"

// Signal is the classification of a price against its intrinsic value bands.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalHold Signal = "HOLD"
	SignalSell Signal = "SELL"
)

// CalculateBuyPrice returns V x (1 - m), rounded to cents.
func CalculateBuyPrice(intrinsicValue *float64, safetyMargin float64) *float64 {
	if intrinsicValue == nil || *intrinsicValue <= 0 {
		return nil
	}
	price := formulas.Round2(*intrinsicValue * (1 - safetyMargin))
	return &price
}

// CalculateSellPrice returns V x (1 + m), rounded to cents.
func CalculateSellPrice(intrinsicValue *float64, safetyMargin float64) *float64 {
	if intrinsicValue == nil || *intrinsicValue <= 0 {
		return nil
	}
	price := formulas.Round2(*intrinsicValue * (1 + safetyMargin))
	return &price
}

// GenerateTradingSignal classifies currentPrice:
//   - BUY when currentPrice <= buy price
//   - SELL when currentPrice >= sell price
//   - HOLD otherwise, and whenever V is unavailable or the price is not positive
func GenerateTradingSignal(currentPrice float64, intrinsicValue *float64, safetyMargin float64) Signal {
	if currentPrice <= 0 {
		return SignalHold
	}

	buyPrice := CalculateBuyPrice(intrinsicValue, safetyMargin)
	sellPrice := CalculateSellPrice(intrinsicValue, safetyMargin)
	if buyPrice == nil || sellPrice == nil {
		return SignalHold
	}

	switch {
	case currentPrice <= *buyPrice:
		return SignalBuy
	case currentPrice >= *sellPrice:
		return SignalSell
	default:
		return SignalHold
	}
}
