package results

import "github.com/aristath/graham/pkg/formulas"

// Comparison contrasts a strategy run with its buy-and-hold baseline.
type Comparison struct {
	ExcessReturnPct    float64 `json:"excess_return_pct" msgpack:"excess_return_pct"` // Percentage points
	EquityRatio        float64 `json:"equity_ratio" msgpack:"equity_ratio"`           // Strategy final / baseline final
	DividendDifference float64 `json:"dividend_difference" msgpack:"dividend_difference"`
	TradeDifference    int     `json:"trade_difference" msgpack:"trade_difference"`
	DrawdownDifference float64 `json:"drawdown_difference" msgpack:"drawdown_difference"` // Negative when the strategy fell less
	Outperformed       bool    `json:"outperformed" msgpack:"outperformed"`
}

// Compare reports strategy minus baseline
func Compare(strategy, baseline Summary) Comparison {
	c := Comparison{
		ExcessReturnPct:    formulas.Round2(strategy.TotalReturnPct - baseline.TotalReturnPct),
		DividendDifference: formulas.Round2(strategy.TotalDividends - baseline.TotalDividends),
		TradeDifference:    strategy.TradeCount - baseline.TradeCount,
		DrawdownDifference: formulas.Round(strategy.MaxDrawdown-baseline.MaxDrawdown, 4),
		Outperformed:       strategy.FinalEquity > baseline.FinalEquity,
	}
	if baseline.FinalEquity != 0 {
		c.EquityRatio = formulas.Round(strategy.FinalEquity/baseline.FinalEquity, 4)
	}
	return c
}
