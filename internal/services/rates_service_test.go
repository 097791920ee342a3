package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/modules/marketdata"
	testingpkg "github.com/aristath/graham/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	rates []domain.RatePoint
	err   error
	froms []time.Time
}

func (f *fakeFetcher) FetchSeries(ctx context.Context, series string, from, to time.Time) ([]domain.RatePoint, error) {
	f.froms = append(f.froms, from)
	return f.rates, f.err
}

func TestRatesService_Refresh(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	repo := marketdata.NewRepository(testingpkg.NewTestDB(t, "history").Conn(), log)
	bus := events.NewBus(log)
	recorder := recordEvents(bus)

	fetcher := &fakeFetcher{rates: []domain.RatePoint{
		{Date: domain.MustDate("2024-01-01"), Value: 11.65},
		{Date: domain.MustDate("2024-02-01"), Value: 11.15},
	}}
	service := NewRatesService(fetcher, repo, events.NewManager(bus, log), log)

	stored, err := service.Refresh(ctx, "4189")
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.True(t, fetcher.froms[0].IsZero(), "first refresh fetches the whole history")

	fetcher.rates = []domain.RatePoint{
		{Date: domain.MustDate("2024-02-01"), Value: 11.25},
		{Date: domain.MustDate("2024-03-01"), Value: 10.65},
	}
	stored, err = service.Refresh(ctx, "4189")
	require.NoError(t, err)
	assert.Equal(t, 2, stored)
	assert.Equal(t, domain.MustDate("2024-02-01"), fetcher.froms[1])

	rates, err := repo.GetRates(ctx, "4189")
	require.NoError(t, err)
	require.Len(t, rates, 3)
	assert.Equal(t, 11.25, rates[1].Value)

	assert.Equal(t, 2, recorder.count(events.RatesRefreshed))
	assert.Equal(t, "2024-03-01", recorder.last[events.RatesRefreshed].Data["latest"])
}

func TestRatesService_RefreshEmptyAndFailure(t *testing.T) {
	ctx := context.Background()
	log := zerolog.Nop()
	repo := marketdata.NewRepository(testingpkg.NewTestDB(t, "history").Conn(), log)

	fetcher := &fakeFetcher{}
	service := NewRatesService(fetcher, repo, nil, log)

	stored, err := service.Refresh(ctx, "4189")
	require.NoError(t, err)
	assert.Zero(t, stored)

	fetcher.err = errors.New("unavailable")
	_, err = service.Refresh(ctx, "4189")
	assert.ErrorContains(t, err, "unavailable")
}
