package testing

import (
	"time"

	"github.com/aristath/graham/internal/domain"
)

// BusinessDays returns every weekday in [start, end] (YYYY-MM-DD).
func BusinessDays(start, end string) []time.Time {
	from, to := domain.MustDate(start), domain.MustDate(end)

	var days []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

// FlatPrices builds a constant close on every business day of the range.
func FlatPrices(start, end string, close float64) []domain.PricePoint {
	days := BusinessDays(start, end)
	prices := make([]domain.PricePoint, len(days))
	for i, d := range days {
		prices[i] = domain.PricePoint{Date: d, Close: close}
	}
	return prices
}

// PricePath builds consecutive business-day prices starting at start, one per close.
func PricePath(start string, closes ...float64) []domain.PricePoint {
	d := domain.MustDate(start)
	prices := make([]domain.PricePoint, 0, len(closes))
	for _, c := range closes {
		for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			d = d.AddDate(0, 0, 1)
		}
		prices = append(prices, domain.PricePoint{Date: d, Close: c})
		d = d.AddDate(0, 0, 1)
	}
	return prices
}

// WithDividends sets the dividend on every n-th price point (1-based), in place.
func WithDividends(prices []domain.PricePoint, every int, dividend float64) []domain.PricePoint {
	for i := range prices {
		if (i+1)%every == 0 {
			prices[i].Dividend = dividend
		}
	}
	return prices
}

// GrowingProfits builds net income for [firstYear, lastYear] compounding at growth.
func GrowingProfits(firstYear, lastYear int, base, growth float64) []domain.ProfitPoint {
	var profits []domain.ProfitPoint
	value := base
	for y := firstYear; y <= lastYear; y++ {
		profits = append(profits, domain.ProfitPoint{Year: y, NetIncome: value})
		value *= 1 + growth
	}
	return profits
}

// ConstantEPS records the same earnings per share for [firstYear, lastYear].
func ConstantEPS(firstYear, lastYear int, eps float64) map[int]float64 {
	out := make(map[int]float64)
	for y := firstYear; y <= lastYear; y++ {
		out[y] = eps
	}
	return out
}

// MonthlyRates builds one observation on the first of each month in
// [start, end], taking values cyclically.
func MonthlyRates(start, end string, values ...float64) []domain.RatePoint {
	from, to := domain.MustDate(start), domain.MustDate(end)
	var rates []domain.RatePoint
	i := 0
	for d := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC); !d.After(to); d = d.AddDate(0, 1, 0) {
		rates = append(rates, domain.RatePoint{Date: d, Value: values[i%len(values)]})
		i++
	}
	return rates
}

// ValueMarket returns market data for one ticker whose intrinsic value is
// 8.5 x eps for every year in [2015, 2030]: flat profits since 2010 and a
// constant 10% rate since 2005.
func ValueMarket(ticker string, eps float64, prices []domain.PricePoint) *domain.MarketData {
	data := domain.NewMarketData()
	AddValuedTicker(data, ticker, eps, prices)
	data.Rates = MonthlyRates("2005-01-01", "2030-12-31", 10)
	return data
}

// AddValuedTicker adds a ticker with flat profits and constant EPS to data.
func AddValuedTicker(data *domain.MarketData, ticker string, eps float64, prices []domain.PricePoint) {
	data.Prices[ticker] = prices
	data.Profits[ticker] = GrowingProfits(2010, 2030, 1e9, 0)
	data.EPS[ticker] = ConstantEPS(2015, 2030, eps)
}
