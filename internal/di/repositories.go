package di

import (
	"fmt"

	"github.com/aristath/graham/internal/modules/marketdata"
	"github.com/aristath/graham/internal/modules/runs"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.HistoryDB == nil || container.LedgerDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.MarketData = marketdata.NewRepository(container.HistoryDB.Conn(), log)
	container.Runs = runs.NewRepository(container.LedgerDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}
