package valuation

import (
	"sort"
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/pkg/formulas"
)

// AverageRateWindowYears is the length of the trailing window used for z.
const AverageRateWindowYears = 10

// RateWindow locates the observations that feed GetInterestRates for date.
// hi is the index of the latest observation on or before date; lo is the index
// of the first observation inside [date - 10 years, date]. ok is false when no
// observation exists on or before date. When lo > hi the window is empty.
func RateWindow(date time.Time, rates []domain.RatePoint) (lo, hi int, ok bool) {
	date = domain.Date(date)

	// First index strictly after date
	after := sort.Search(len(rates), func(i int) bool {
		return rates[i].Date.After(date)
	})
	hi = after - 1
	if hi < 0 {
		return 0, -1, false
	}

	windowStart := date.AddDate(-AverageRateWindowYears, 0, 0)
	lo = sort.Search(len(rates), func(i int) bool {
		return !rates[i].Date.Before(windowStart)
	})
	return lo, hi, true
}

// GetInterestRates returns the current rate (y) and the trailing ten-year
// average rate (z) as decimals. Both are nil when the series has no
// observation on or before date. An empty averaging window degrades z to y.
func GetInterestRates(date time.Time, rates []domain.RatePoint) (current, average *float64) {
	lo, hi, ok := RateWindow(date, rates)
	if !ok {
		return nil, nil
	}

	y := rates[hi].Value / 100
	z := y
	if lo <= hi {
		window := make([]float64, 0, hi-lo+1)
		for _, r := range rates[lo : hi+1] {
			window = append(window, r.Value)
		}
		z = formulas.Mean(window) / 100
	}

	return &y, &z
}
