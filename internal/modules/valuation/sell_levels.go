package valuation

import "github.com/aristath/graham/pkg/formulas"

// SellLevel is one rung of the staged exit ladder.
type SellLevel struct {
	Level        int     `json:"level"`
	Multiplier   float64 `json:"multiplier"`    // Applied to V, not to the sell band
	ProfitMargin float64 `json:"profit_margin"` // Multiplier - 1
	SellFraction float64 `json:"sell_fraction"` // Of the position held when the level triggers
	TriggerPrice float64 `json:"trigger_price"`
}

// sellLadder steps 17.5% above V x 1.50; the last rung liquidates the remainder.
var sellLadder = []struct {
	multiplier float64
	fraction   float64
}{
	{1.50, 0.50},
	{1.675, 0.50},
	{1.85, 0.50},
	{2.025, 0.50},
	{2.20, 1.00},
}

// CalculatePartialSellLevels returns the five exit levels for V in ascending
// trigger order, or nil when V is unavailable.
func CalculatePartialSellLevels(intrinsicValue *float64) []SellLevel {
	if intrinsicValue == nil || *intrinsicValue <= 0 {
		return nil
	}

	levels := make([]SellLevel, len(sellLadder))
	for i, rung := range sellLadder {
		levels[i] = SellLevel{
			Level:        i + 1,
			Multiplier:   rung.multiplier,
			ProfitMargin: formulas.Round(rung.multiplier-1, 4),
			SellFraction: rung.fraction,
			TriggerPrice: formulas.Round2(*intrinsicValue * rung.multiplier),
		}
	}
	return levels
}

// FirstTriggeredLevel returns the lowest level above afterLevel whose trigger
// price is met by currentPrice. Pass afterLevel = 0 to consider the whole ladder.
func FirstTriggeredLevel(levels []SellLevel, currentPrice float64, afterLevel int) (SellLevel, bool) {
	for _, level := range levels {
		if level.Level <= afterLevel {
			continue
		}
		if currentPrice >= level.TriggerPrice {
			return level, true
		}
	}
	return SellLevel{}, false
}

// LastLevel is the level that liquidates the whole position.
func LastLevel() int {
	return len(sellLadder)
}
