package backtest

import (
	"sort"
	"time"

	"github.com/aristath/graham/internal/domain"
)

// Day is one entry of the merged calendar: every portfolio instrument that
// traded on Date, keyed by ticker.
type Day struct {
	Date time.Time
	Bars map[string]domain.PricePoint
}

// BuildCalendar merges the price series of the portfolio into a date-ascending
// calendar restricted to [start, end]. A date appears when at least one
// instrument has a price on it.
func BuildCalendar(portfolio domain.Portfolio, prices map[string][]domain.PricePoint, start, end time.Time) []Day {
	start, end = domain.Date(start), domain.Date(end)
	byDate := make(map[time.Time]map[string]domain.PricePoint)

	for _, entry := range portfolio {
		for _, p := range prices[entry.Ticker] {
			d := domain.Date(p.Date)
			if d.Before(start) || d.After(end) {
				continue
			}
			bars, ok := byDate[d]
			if !ok {
				bars = make(map[string]domain.PricePoint)
				byDate[d] = bars
			}
			p.Date = d
			bars[entry.Ticker] = p
		}
	}

	days := make([]Day, 0, len(byDate))
	for d, bars := range byDate {
		days = append(days, Day{Date: d, Bars: bars})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })

	return days
}

// StartPrices returns, per ticker, the first close on or after start and not
// after end. Tickers without such a price are absent.
func StartPrices(portfolio domain.Portfolio, prices map[string][]domain.PricePoint, start, end time.Time) map[string]float64 {
	start, end = domain.Date(start), domain.Date(end)
	out := make(map[string]float64, len(portfolio))

	for _, entry := range portfolio {
		var first *domain.PricePoint
		for i := range prices[entry.Ticker] {
			p := &prices[entry.Ticker][i]
			d := domain.Date(p.Date)
			if d.Before(start) || d.After(end) {
				continue
			}
			if first == nil || d.Before(domain.Date(first.Date)) {
				first = p
			}
		}
		if first != nil {
			out[entry.Ticker] = first.Close
		}
	}

	return out
}
