package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/metrics"
	"github.com/rs/zerolog"
)

// RateFetcher downloads a rate series
type RateFetcher interface {
	FetchSeries(ctx context.Context, series string, from, to time.Time) ([]domain.RatePoint, error)
}

// RateStore persists rate series
type RateStore interface {
	LatestRateDate(ctx context.Context, series string) (time.Time, bool, error)
	UpsertRates(ctx context.Context, series string, rates []domain.RatePoint) (int, error)
}

// RatesService keeps the stored rate series current
type RatesService struct {
	fetcher RateFetcher
	store   RateStore
	events  *events.Manager
	log     zerolog.Logger
}

// NewRatesService creates a rates service
func NewRatesService(fetcher RateFetcher, store RateStore, eventManager *events.Manager, log zerolog.Logger) *RatesService {
	return &RatesService{
		fetcher: fetcher,
		store:   store,
		events:  eventManager,
		log:     log.With().Str("service", "rates").Logger(),
	}
}

// Refresh fetches series from the day of the latest stored observation
// (the whole history when nothing is stored) and upserts the result. The
// latest observation is refetched since providers revise it.
func (s *RatesService) Refresh(ctx context.Context, series string) (int, error) {
	latest, ok, err := s.store.LatestRateDate(ctx, series)
	if err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to read latest rate date: %w", err)
	}

	var from time.Time
	if ok {
		from = latest
	}

	rates, err := s.fetcher.FetchSeries(ctx, series, from, time.Time{})
	if err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to refresh rate series %s: %w", series, err)
	}
	if len(rates) == 0 {
		metrics.RateRefreshTotal.WithLabelValues("empty").Inc()
		s.log.Info().Str("series", series).Msg("No new rate observations")
		return 0, nil
	}

	stored, err := s.store.UpsertRates(ctx, series, rates)
	if err != nil {
		metrics.RateRefreshTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to store rate series %s: %w", series, err)
	}
	metrics.RateRefreshTotal.WithLabelValues("ok").Inc()

	newest := rates[len(rates)-1].Date.Format(domain.DateLayout)
	s.log.Info().Str("series", series).Int("stored", stored).Str("latest", newest).Msg("Rate series refreshed")
	if s.events != nil {
		s.events.EmitTyped("rates", &events.RatesRefreshedData{Series: series, Stored: stored, Latest: newest})
	}

	return stored, nil
}
