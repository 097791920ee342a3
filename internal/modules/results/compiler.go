// Package results reduces the logs of a finished simulation into a summary
// and compares a strategy run with its buy-and-hold baseline.
package results

import (
	"errors"
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/pkg/formulas"
)

// ErrNoResult is returned when a run produced no equity snapshots.
var ErrNoResult = errors.New("no result: the run produced no equity snapshots")

// Ledger is the read side of a finished run. *backtest.Engine implements it.
type Ledger interface {
	InitialCapital() float64
	InitialPositions() []domain.Position
	EquityCurve() []domain.EquitySnapshot
	Trades() []domain.Trade
	Dividends() []domain.DividendRecord
}

// Summary is the per-run summary record
type Summary struct {
	InitialCapital float64   `json:"initial_capital" msgpack:"initial_capital"`
	FinalEquity    float64   `json:"final_equity" msgpack:"final_equity"`
	TotalReturnPct float64   `json:"total_return_pct" msgpack:"total_return_pct"`
	TotalDividends float64   `json:"total_dividends" msgpack:"total_dividends"`
	TradeCount     int       `json:"trade_count" msgpack:"trade_count"`
	StartDate      time.Time `json:"start_date" msgpack:"start_date"`
	EndDate        time.Time `json:"end_date" msgpack:"end_date"`
	Days           int       `json:"days" msgpack:"days"`

	TradesByAction map[domain.TradeAction]int `json:"trades_by_action" msgpack:"trades_by_action"`
	MaxDrawdown    float64                    `json:"max_drawdown" msgpack:"max_drawdown"` // Fraction below the running peak
	Volatility     float64                    `json:"volatility" msgpack:"volatility"`     // Annualised, of daily equity returns
	SharpeRatio    *float64                   `json:"sharpe_ratio,omitempty" msgpack:"sharpe_ratio,omitempty"`
	CAGR           *float64                   `json:"cagr,omitempty" msgpack:"cagr,omitempty"`
}

// Result is a compiled run: the summary plus the logs it was derived from.
type Result struct {
	Summary          Summary                 `json:"summary"`
	InitialPositions []domain.Position       `json:"initial_positions"`
	EquityCurve      []domain.EquitySnapshot `json:"equity_curve"`
	Trades           []domain.Trade          `json:"trades"`
	Dividends        []domain.DividendRecord `json:"dividends"`
}

// Compile builds the Result of a run. It reads the ledger only.
func Compile(l Ledger) (*Result, error) {
	curve := l.EquityCurve()
	if len(curve) == 0 {
		return nil, ErrNoResult
	}

	trades := l.Trades()
	dividends := l.Dividends()
	initial := l.InitialCapital()

	last := curve[len(curve)-1]
	summary := Summary{
		InitialCapital: initial,
		FinalEquity:    last.TotalEquity,
		TradeCount:     len(trades),
		StartDate:      curve[0].Date,
		EndDate:        last.Date,
		Days:           len(curve),
		TradesByAction: make(map[domain.TradeAction]int),
	}

	if initial != 0 {
		summary.TotalReturnPct = formulas.Round2((last.TotalEquity - initial) / initial * 100)
	}

	amounts := make([]float64, len(dividends))
	for i, d := range dividends {
		amounts[i] = d.TotalAmount
	}
	summary.TotalDividends = formulas.Round2(formulas.Sum(amounts))

	for _, t := range trades {
		summary.TradesByAction[t.Action]++
	}

	equity := make([]float64, len(curve))
	for i, s := range curve {
		equity[i] = s.TotalEquity
	}
	returns := formulas.CalculateReturns(equity)

	if dd := formulas.CalculateMaxDrawdown(equity); dd != nil {
		summary.MaxDrawdown = formulas.Round(*dd, 4)
	}
	summary.Volatility = formulas.Round(formulas.AnnualizedVolatility(returns), 4)
	if sharpe := formulas.CalculateSharpeRatio(returns, 0, formulas.TradingDaysPerYear); sharpe != nil {
		v := formulas.Round(*sharpe, 4)
		summary.SharpeRatio = &v
	}
	years := last.Date.Sub(curve[0].Date).Hours() / 24 / 365.25
	if cagr := formulas.CalculateCAGR(initial, last.TotalEquity, years); cagr != nil {
		v := formulas.Round(*cagr, 4)
		summary.CAGR = &v
	}

	return &Result{
		Summary:          summary,
		InitialPositions: l.InitialPositions(),
		EquityCurve:      curve,
		Trades:           trades,
		Dividends:        dividends,
	}, nil
}
