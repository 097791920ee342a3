package domain

import (
	"sort"
	"time"
)

// MarketData bundles every input series the engine consumes. Missing entries
// are equivalent to empty series.
type MarketData struct {
	Prices  map[string][]PricePoint
	Profits map[string][]ProfitPoint
	EPS     map[string]map[int]float64
	Rates   []RatePoint
}

// NewMarketData returns an empty bundle with initialised maps.
func NewMarketData() *MarketData {
	return &MarketData{
		Prices:  make(map[string][]PricePoint),
		Profits: make(map[string][]ProfitPoint),
		EPS:     make(map[string]map[int]float64),
	}
}

// Normalize sorts every series chronologically, truncates dates to the day
// and keeps the last observation when a date or year repeats.
func (m *MarketData) Normalize() {
	for ticker, prices := range m.Prices {
		m.Prices[ticker] = normalizePrices(prices)
	}
	for ticker, profits := range m.Profits {
		m.Profits[ticker] = normalizeProfits(profits)
	}
	m.Rates = normalizeRates(m.Rates)
}

func normalizePrices(prices []PricePoint) []PricePoint {
	byDate := make(map[time.Time]PricePoint, len(prices))
	for _, p := range prices {
		p.Date = Date(p.Date)
		byDate[p.Date] = p
	}
	out := make([]PricePoint, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func normalizeProfits(profits []ProfitPoint) []ProfitPoint {
	byYear := make(map[int]float64, len(profits))
	for _, p := range profits {
		byYear[p.Year] = p.NetIncome
	}
	out := make([]ProfitPoint, 0, len(byYear))
	for year, v := range byYear {
		out = append(out, ProfitPoint{Year: year, NetIncome: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

func normalizeRates(rates []RatePoint) []RatePoint {
	byDate := make(map[time.Time]float64, len(rates))
	for _, r := range rates {
		byDate[Date(r.Date)] = r.Value
	}
	out := make([]RatePoint, 0, len(byDate))
	for d, v := range byDate {
		out = append(out, RatePoint{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
