package backtest

import (
	"math"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/allocation"
	"github.com/aristath/graham/internal/modules/valuation"
	"github.com/aristath/graham/pkg/formulas"
)

// evaluateTradingSignals executes staged sells inline and returns the buy
// candidates of the day in portfolio order.
func (e *Engine) evaluateTradingSignals(day Day) []allocation.BuyCandidate {
	var candidates []allocation.BuyCandidate

	for _, entry := range e.portfolio {
		bar, ok := day.Bars[entry.Ticker]
		if !ok || bar.Close <= 0 {
			continue
		}
		price := bar.Close

		iv := e.intrinsicValue(entry.Ticker, day.Date)
		if iv == nil || *iv <= 0 {
			continue
		}
		e.valued[entry.Ticker] = true

		switch valuation.GenerateTradingSignal(price, iv, e.opts.SafetyMargin) {
		case valuation.SignalSell:
			e.executeSell(day, entry.Ticker, price, *iv)

		case valuation.SignalBuy:
			if e.cash <= price*e.opts.MinCashMultiplier {
				continue
			}
			wpp := allocation.CalculateWPP(*iv, price, float64(entry.Weight))
			if wpp <= 0 {
				continue
			}
			buyPrice := valuation.CalculateBuyPrice(iv, e.opts.SafetyMargin)
			candidates = append(candidates, allocation.BuyCandidate{
				Ticker:         entry.Ticker,
				IntrinsicValue: *iv,
				Price:          price,
				BuyPrice:       *buyPrice,
				WPP:            wpp,
			})
		}
	}

	return candidates
}

// executeSell applies the first pending exit level met by price.
func (e *Engine) executeSell(day Day, ticker string, price, iv float64) {
	held := e.positions[ticker]
	if held <= 0 {
		return
	}

	levels := valuation.CalculatePartialSellLevels(&iv)
	level, ok := valuation.FirstTriggeredLevel(levels, price, e.sellLevel[ticker])
	if !ok {
		return
	}

	shares := int(math.Floor(float64(held) * level.SellFraction))
	if level.SellFraction >= 1 {
		shares = held
	}
	if shares <= 0 {
		return
	}

	proceeds := float64(shares) * price
	e.cash += proceeds
	e.positions[ticker] -= shares
	if e.positions[ticker] <= 0 {
		delete(e.positions, ticker)
		delete(e.sellLevel, ticker)
	} else {
		e.sellLevel[ticker] = level.Level
	}

	e.trades = append(e.trades, domain.Trade{
		Date:           day.Date,
		Ticker:         ticker,
		Action:         domain.ActionSell,
		Shares:         shares,
		Price:          formulas.Round2(price),
		Amount:         formulas.Round2(proceeds),
		IntrinsicValue: formulas.Round2(iv),
		Level:          level.Level,
		ProfitMargin:   level.ProfitMargin,
	})

	e.log.Debug().
		Str("ticker", ticker).
		Int("shares", shares).
		Int("level", level.Level).
		Float64("price", price).
		Float64("iv", iv).
		Msg("Staged sell executed")
}

// executeBuys distributes the available cash across candidates by WPP and
// buys whole shares, never spending more than the cash on hand.
func (e *Engine) executeBuys(day Day, candidates []allocation.BuyCandidate) {
	if e.cash <= 0 {
		return
	}

	byTicker := make(map[string]allocation.BuyCandidate, len(candidates))
	for _, c := range candidates {
		byTicker[c.Ticker] = c
	}

	for _, alloc := range allocation.AllocateCapitalByWPP(candidates, e.cash) {
		if alloc.Amount <= 0 {
			continue
		}
		c := byTicker[alloc.Ticker]

		shares := int(math.Floor(alloc.Amount / c.Price))
		if shares <= 0 {
			continue
		}
		cost := float64(shares) * c.Price
		if cost > e.cash {
			continue
		}

		e.cash -= cost
		e.positions[c.Ticker] += shares
		delete(e.sellLevel, c.Ticker)

		e.trades = append(e.trades, domain.Trade{
			Date:           day.Date,
			Ticker:         c.Ticker,
			Action:         domain.ActionBuy,
			Shares:         shares,
			Price:          formulas.Round2(c.Price),
			Amount:         formulas.Round2(cost),
			IntrinsicValue: formulas.Round2(c.IntrinsicValue),
			WPP:            formulas.Round(c.WPP, 4),
			Discount:       formulas.Round(c.Discount(), 4),
			Allocation:     formulas.Round2(alloc.Amount),
		})

		e.log.Debug().
			Str("ticker", c.Ticker).
			Int("shares", shares).
			Float64("price", c.Price).
			Float64("allocation", alloc.Amount).
			Msg("Buy executed")
	}
}
