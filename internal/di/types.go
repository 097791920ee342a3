/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is built by Wire() and handed to the HTTP server, the scheduler
 * and the CLI commands.
 */
package di

import (
	"errors"

	"github.com/aristath/graham/internal/clients/bcb"
	"github.com/aristath/graham/internal/database"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/modules/export"
	"github.com/aristath/graham/internal/modules/marketdata"
	"github.com/aristath/graham/internal/modules/runs"
	"github.com/aristath/graham/internal/services"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: history (prices, profits, EPS, rates) and ledger (stored runs)
 * - Clients: BCB rate series API, optional S3 uploader
 * - Repositories: market data and run ledger
 * - Services: backtest pairs and rate refresh
 */
type Container struct {
	// Databases
	HistoryDB *database.DB // Market data time series
	LedgerDB  *database.DB // Stored runs and their logs

	// Clients
	BCBClient *bcb.Client
	S3Client  *export.S3Client // nil when uploads are disabled

	// Repositories
	MarketData *marketdata.Repository
	Runs       *runs.Repository

	// Market data access
	Loader   *marketdata.Loader
	Importer *marketdata.Importer
	Exporter *export.Exporter

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Services
	BacktestService *services.BacktestService
	RatesService    *services.RatesService
}

// Close closes both databases
func (c *Container) Close() error {
	var errs []error
	for _, db := range []*database.DB{c.HistoryDB, c.LedgerDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
