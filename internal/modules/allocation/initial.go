package allocation

import (
	"math"

	"github.com/aristath/graham/internal/domain"
)

// InitialAllocation spends capital across the portfolio in proportion to the
// strategic weights, buying whole shares at each instrument's start price.
// Instruments without a start price, or whose share of capital buys less than
// one share, are skipped. Returns the opened positions in portfolio order and
// the cash left over.
func InitialAllocation(portfolio domain.Portfolio, startPrices map[string]float64, capital float64) ([]domain.Position, float64) {
	cash := capital
	totalWeight := portfolio.TotalWeight()
	if capital <= 0 || totalWeight <= 0 {
		return nil, cash
	}

	var positions []domain.Position
	for _, entry := range portfolio {
		price, ok := startPrices[entry.Ticker]
		if !ok || price <= 0 {
			continue
		}

		budget := capital * float64(entry.Weight) / float64(totalWeight)
		shares := int(math.Floor(budget / price))
		if shares < 1 {
			continue
		}

		cost := float64(shares) * price
		if cost > cash {
			continue
		}
		cash -= cost

		positions = append(positions, domain.Position{
			Ticker: entry.Ticker,
			Weight: entry.Weight,
			Shares: shares,
			Price:  price,
			Cost:   cost,
		})
	}

	return positions, cash
}
