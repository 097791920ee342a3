package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/rs/zerolog"
)

// ErrNoPrices is returned when none of the requested tickers has a stored price.
var ErrNoPrices = errors.New("no price data for any ticker in the portfolio")

// Loader assembles the engine's input bundle from the store
type Loader struct {
	repo *Repository
	log  zerolog.Logger
}

// NewLoader creates a loader over repo
func NewLoader(repo *Repository, log zerolog.Logger) *Loader {
	return &Loader{
		repo: repo,
		log:  log.With().Str("component", "marketdata_loader").Logger(),
	}
}

// Load reads prices in [from, to] plus the full fundamentals of every
// portfolio ticker and the whole rate series. Fundamentals are not bounded by
// from: growth needs the years before the start. A ticker with no stored
// series gets empty ones; only the absence of every price is an error.
func (l *Loader) Load(ctx context.Context, portfolio domain.Portfolio, rateSeries string, from, to time.Time) (*domain.MarketData, error) {
	data := domain.NewMarketData()
	priced := 0

	for _, ticker := range portfolio.Tickers() {
		prices, err := l.repo.GetPrices(ctx, ticker, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to load prices for %s: %w", ticker, err)
		}
		profits, err := l.repo.GetNetIncome(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("failed to load net income for %s: %w", ticker, err)
		}
		eps, err := l.repo.GetEPS(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("failed to load eps for %s: %w", ticker, err)
		}

		if len(prices) == 0 {
			l.log.Warn().Str("ticker", ticker).Msg("No stored prices")
		} else {
			priced++
		}
		if len(profits) < 2 || len(eps) == 0 {
			l.log.Warn().
				Str("ticker", ticker).
				Int("profit_years", len(profits)).
				Int("eps_years", len(eps)).
				Msg("Insufficient fundamentals, intrinsic value may be unavailable")
		}

		data.Prices[ticker] = prices
		data.Profits[ticker] = profits
		data.EPS[ticker] = eps
	}

	if priced == 0 {
		return nil, ErrNoPrices
	}

	rates, err := l.repo.GetRates(ctx, rateSeries)
	if err != nil {
		return nil, fmt.Errorf("failed to load rate series %s: %w", rateSeries, err)
	}
	if len(rates) == 0 {
		l.log.Warn().Str("series", rateSeries).Msg("Rate series is empty, no intrinsic values will be available")
	}
	data.Rates = rates

	data.Normalize()

	l.log.Info().
		Int("tickers", len(portfolio)).
		Int("priced", priced).
		Int("rates", len(rates)).
		Msg("Market data loaded")

	return data, nil
}
