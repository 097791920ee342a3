package marketdata

import (
	"context"
	"fmt"
	"os"

	"github.com/aristath/graham/internal/domain"
	"github.com/rs/zerolog"
)

// Importer loads CSV files into the store
type Importer struct {
	repo *Repository
	log  zerolog.Logger
}

// NewImporter creates an importer writing to repo
func NewImporter(repo *Repository, log zerolog.Logger) *Importer {
	return &Importer{
		repo: repo,
		log:  log.With().Str("component", "csv_importer").Logger(),
	}
}

// ImportPrices reads a daily price CSV for ticker and stores it
func (i *Importer) ImportPrices(ctx context.Context, ticker, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	prices, err := ReadPriceCSV(f)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	n, err := i.repo.UpsertPrices(ctx, ticker, prices)
	if err != nil {
		return 0, err
	}
	i.log.Info().Str("ticker", ticker).Str("file", path).Int("rows", n).Msg("Imported prices")
	return n, nil
}

// ImportNetIncome reads a year,value CSV of net income for ticker
func (i *Importer) ImportNetIncome(ctx context.Context, ticker, path string) (int, error) {
	values, err := readAnnualFile(path)
	if err != nil {
		return 0, err
	}

	n, err := i.repo.UpsertNetIncome(ctx, ticker, ProfitsFromAnnual(values))
	if err != nil {
		return 0, err
	}
	i.log.Info().Str("ticker", ticker).Str("file", path).Int("rows", n).Msg("Imported net income")
	return n, nil
}

// ImportEPS reads a year,value CSV of earnings per share for ticker
func (i *Importer) ImportEPS(ctx context.Context, ticker, path string) (int, error) {
	values, err := readAnnualFile(path)
	if err != nil {
		return 0, err
	}

	n, err := i.repo.UpsertEPS(ctx, ticker, values)
	if err != nil {
		return 0, err
	}
	i.log.Info().Str("ticker", ticker).Str("file", path).Int("rows", n).Msg("Imported EPS")
	return n, nil
}

// ImportRates reads a date,value CSV into series
func (i *Importer) ImportRates(ctx context.Context, series, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rates, err := ReadRatesCSV(f)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return i.StoreRates(ctx, series, rates)
}

// StoreRates writes already-fetched observations into series
func (i *Importer) StoreRates(ctx context.Context, series string, rates []domain.RatePoint) (int, error) {
	n, err := i.repo.UpsertRates(ctx, series, rates)
	if err != nil {
		return 0, err
	}
	i.log.Info().Str("series", series).Int("rows", n).Msg("Stored rates")
	return n, nil
}

func readAnnualFile(path string) (map[int]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	values, err := ReadAnnualCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return values, nil
}
