package backtest

import (
	"math"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/pkg/formulas"
)

// processDividends handles every dividend paid today on a held position. Cash
// mode credits the amount; reinvest mode never credits it and instead buys
// floor(amount / close) shares out of existing cash when cash covers the cost.
func (e *Engine) processDividends(day Day) {
	for _, entry := range e.portfolio {
		bar, ok := day.Bars[entry.Ticker]
		if !ok || bar.Dividend <= 0 {
			continue
		}
		shares := e.positions[entry.Ticker]
		if shares <= 0 {
			continue
		}

		amount := float64(shares) * bar.Dividend

		record := domain.DividendRecord{
			Date:             day.Date,
			Ticker:           entry.Ticker,
			SharesHeld:       shares,
			DividendPerShare: formulas.Round(bar.Dividend, 4),
			TotalAmount:      formulas.Round2(amount),
		}

		if e.opts.DividendMode == DividendReinvest {
			record.ReinvestedShares = e.reinvestDividend(day, entry.Ticker, amount, bar.Close)
		} else {
			e.cash += amount
		}

		e.dividends = append(e.dividends, record)
	}
}

// reinvestDividend buys floor(amount / close) shares, paid from cash; returns
// the number bought. Nothing is bought when cash is short of the cost.
func (e *Engine) reinvestDividend(day Day, ticker string, amount, price float64) int {
	if price <= 0 {
		return 0
	}
	shares := int(math.Floor(amount / price))
	if shares <= 0 {
		return 0
	}
	cost := float64(shares) * price
	if cost > e.cash {
		return 0
	}

	e.cash -= cost
	e.positions[ticker] += shares
	e.trades = append(e.trades, domain.Trade{
		Date:   day.Date,
		Ticker: ticker,
		Action: domain.ActionDividendReinvest,
		Shares: shares,
		Price:  formulas.Round2(price),
		Amount: formulas.Round2(cost),
	})

	e.log.Debug().
		Str("ticker", ticker).
		Int("shares", shares).
		Float64("price", price).
		Msg("Dividend reinvested")

	return shares
}
