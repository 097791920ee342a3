package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RatesRefresher updates a stored rate series
type RatesRefresher interface {
	Refresh(ctx context.Context, series string) (int, error)
}

// RefreshRatesJob pulls new observations of the configured rate series
type RefreshRatesJob struct {
	refresher RatesRefresher
	series    string
	timeout   time.Duration
	log       zerolog.Logger
}

// NewRefreshRatesJob creates a new RefreshRatesJob
func NewRefreshRatesJob(refresher RatesRefresher, series string, log zerolog.Logger) *RefreshRatesJob {
	return &RefreshRatesJob{
		refresher: refresher,
		series:    series,
		timeout:   2 * time.Minute,
		log:       log.With().Str("job", "refresh_rates").Logger(),
	}
}

// Name returns the job name
func (j *RefreshRatesJob) Name() string {
	return "refresh_rates"
}

// Run executes the refresh
func (j *RefreshRatesJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	stored, err := j.refresher.Refresh(ctx, j.series)
	if err != nil {
		return err
	}

	j.log.Info().Str("series", j.series).Int("stored", stored).Msg("Rates refreshed")
	return nil
}
