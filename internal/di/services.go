package di

import (
	"context"
	"fmt"

	"github.com/aristath/graham/internal/clients/bcb"
	"github.com/aristath/graham/internal/config"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/modules/export"
	"github.com/aristath/graham/internal/modules/marketdata"
	"github.com/aristath/graham/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates clients and services.
// Order matters: the event bus and exporter are needed by the backtest service.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.MarketData == nil || container.Runs == nil {
		return fmt.Errorf("repositories must be initialized before services")
	}

	// Events
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, log)

	// Clients
	container.BCBClient = bcb.NewClient(log,
		bcb.WithBaseURL(cfg.BCB.BaseURL),
		bcb.WithRateLimit(cfg.BCB.RequestsPerSecond),
	)

	var store export.ObjectStore
	if cfg.Export.S3Enabled() {
		s3Client, err := export.NewS3Client(ctx, cfg.Export.S3, log)
		if err != nil {
			return fmt.Errorf("failed to create s3 client: %w", err)
		}
		container.S3Client = s3Client
		store = s3Client
	}

	// Market data
	container.Loader = marketdata.NewLoader(container.MarketData, log)
	container.Importer = marketdata.NewImporter(container.MarketData, log)
	container.Exporter = export.NewExporter(cfg.Export.Dir, store, cfg.Export.S3Prefix, log)

	// Services
	container.BacktestService = services.NewBacktestService(
		container.Loader,
		container.Runs,
		container.Exporter,
		container.EventManager,
		log,
	)
	container.RatesService = services.NewRatesService(
		container.BCBClient,
		container.MarketData,
		container.EventManager,
		log,
	)

	log.Info().Bool("s3_upload", store != nil).Msg("Services initialized")
	return nil
}
