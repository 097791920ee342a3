package valuation

import (
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/pkg/formulas"
)

const (
	// GrahamBaseMultiple is the P/E of a company with zero growth.
	GrahamBaseMultiple = 8.5
	// GrahamGrowthFactor multiplies the growth rate expressed in percent.
	GrahamGrowthFactor = 2.0
	// MinProfitYears is the shortest net income history that yields a growth rate.
	MinProfitYears = 2
)

// CalculateCAGR returns the compound annual growth rate of a chronological
// net income series, as a decimal (0.11 = 11%).
//
// Returns nil with fewer than two points, any non-positive value, or when no
// year has elapsed between the first and last point.
func CalculateCAGR(points []domain.ProfitPoint) *float64 {
	if len(points) < MinProfitYears {
		return nil
	}

	for _, p := range points {
		if p.NetIncome <= 0 {
			return nil
		}
	}

	first, last := points[0], points[len(points)-1]
	return formulas.CalculateCAGR(first.NetIncome, last.NetIncome, float64(last.Year-first.Year))
}

// ProfitHistoryBefore returns the points whose fiscal year is strictly before
// year, keeping only the most recent lookbackYears entries when lookbackYears > 0.
// points must be sorted by year.
func ProfitHistoryBefore(points []domain.ProfitPoint, year int, lookbackYears int) []domain.ProfitPoint {
	end := 0
	for end < len(points) && points[end].Year < year {
		end++
	}
	history := points[:end]
	if lookbackYears > 0 && len(history) > lookbackYears {
		history = history[len(history)-lookbackYears:]
	}
	return history
}

// CalculateIntrinsicValue evaluates the formula for one instrument on date.
//
// Growth comes from net income strictly before date's year (no look-ahead);
// EPS is looked up for exactly date's year. Returns nil when any input is
// missing or degenerate, or the rounded result is not positive.
func CalculateIntrinsicValue(
	date time.Time,
	profits []domain.ProfitPoint,
	eps map[int]float64,
	rates []domain.RatePoint,
	lookbackYears int,
) *float64 {
	year := date.Year()

	history := ProfitHistoryBefore(profits, year, lookbackYears)
	if len(history) < MinProfitYears {
		return nil
	}

	cagr := CalculateCAGR(history)
	if cagr == nil {
		return nil
	}

	current, average := GetInterestRates(date, rates)
	if current == nil || average == nil || *current == 0 {
		return nil
	}

	lpa, ok := eps[year]
	if !ok || lpa <= 0 {
		return nil
	}

	growthPct := *cagr * 100
	value := formulas.Round2(lpa * (GrahamBaseMultiple + GrahamGrowthFactor*growthPct) * *average / *current)
	if value <= 0 {
		return nil
	}

	return &value
}
