/**
 * Package services orchestrates backtests and data refreshes.
 *
 * BacktestService is the single entry point for running a definition:
 * - Market data is loaded once from the history store
 * - A strategy engine and a buy-and-hold engine run over the same data
 * - Both runs are compiled, compared and persisted under one pair id
 * - Progress and completion are published as events
 *
 * Usage:
 *   pair, _ := backtestService.RunPair(ctx, def)
 *   excess := pair.Comparison.ExcessReturnPct
 */
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/metrics"
	"github.com/aristath/graham/internal/modules/backtest"
	"github.com/aristath/graham/internal/modules/export"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/aristath/graham/internal/modules/runs"
	"github.com/rs/zerolog"
)

// DefaultProgressInterval is the number of simulated days between progress events.
const DefaultProgressInterval = 250

// MarketDataLoader builds the engine input bundle
type MarketDataLoader interface {
	Load(ctx context.Context, portfolio domain.Portfolio, rateSeries string, from, to time.Time) (*domain.MarketData, error)
}

// RunStore persists compiled runs
type RunStore interface {
	Save(ctx context.Context, run *runs.Run, result *results.Result) error
}

// RunExporter writes a compiled run to files
type RunExporter interface {
	Export(ctx context.Context, runID string, result *results.Result) (*export.Report, error)
}

// RunOutcome is one persisted engine run.
type RunOutcome struct {
	Run    *runs.Run           `json:"run"`
	Result *results.Result     `json:"-"`
	Cache  backtest.CacheStats `json:"cache"`
}

// PairResult is a strategy run with its buy-and-hold baseline.
type PairResult struct {
	PairID     string             `json:"pair_id"`
	Name       string             `json:"name"`
	Strategy   RunOutcome         `json:"strategy"`
	Baseline   RunOutcome         `json:"baseline"`
	Comparison results.Comparison `json:"comparison"`
	Exports    []*export.Report   `json:"exports,omitempty"`
	Duration   time.Duration      `json:"duration"`
}

/**
 * BacktestService runs backtest pairs.
 *
 * The two engines of a pair never share mutable state. They read the same
 * immutable market data bundle and run concurrently.
 */
type BacktestService struct {
	loader           MarketDataLoader
	store            RunStore
	exporter         RunExporter // Optional
	events           *events.Manager
	progressInterval int
	engineLog        zerolog.Logger
	log              zerolog.Logger
}

/**
 * NewBacktestService creates a new BacktestService.
 *
 * Parameters:
 *   - loader: Market data loader over the history store
 *   - store: Run ledger
 *   - exporter: Optional exporter, used when a definition asks for export
 *   - eventManager: Event manager for progress and completion events
 *   - log: Structured logger
 */
func NewBacktestService(
	loader MarketDataLoader,
	store RunStore,
	exporter RunExporter,
	eventManager *events.Manager,
	log zerolog.Logger,
) *BacktestService {
	return &BacktestService{
		loader:           loader,
		store:            store,
		exporter:         exporter,
		events:           eventManager,
		progressInterval: DefaultProgressInterval,
		engineLog:        log,
		log:              log.With().Str("service", "backtest_pair").Logger(),
	}
}

// SetProgressInterval sets the days between progress events; values < 1 disable them.
func (s *BacktestService) SetProgressInterval(days int) {
	s.progressInterval = days
}

/**
 * RunPair runs a definition in strategy and buy-and-hold mode.
 *
 * Both runs are saved under a shared pair id, strategy first. When the
 * definition asks for export and an exporter is configured, both runs are
 * exported after they are saved; an export failure is logged and reported as an
 * event but does not fail the pair.
 *
 * Returns:
 *   - *PairResult: Both runs and their comparison
 *   - error: Invalid definition, data loading failure, cancellation, an empty
 *     result (results.ErrNoResult) or a ledger failure
 */
func (s *BacktestService) RunPair(ctx context.Context, def *definition.Definition) (*PairResult, error) {
	started := time.Now()

	if err := def.Validate(); err != nil {
		return nil, err
	}
	opts, err := def.Options()
	if err != nil {
		return nil, err
	}
	portfolio := def.PortfolioSpec()

	pairID := runs.NewPairID()
	log := s.log.With().Str("pair_id", pairID).Str("name", def.Name).Logger()

	s.emit(&events.BacktestStartedData{
		PairID:    pairID,
		Name:      def.Name,
		Tickers:   portfolio.Tickers(),
		StartDate: def.StartDate,
		EndDate:   def.EndDate,
	})
	log.Info().
		Strs("tickers", portfolio.Tickers()).
		Str("start", def.StartDate).
		Str("end", def.EndDate).
		Msg("Backtest started")

	pair, err := s.runPair(ctx, pairID, def, opts, portfolio)
	if err != nil {
		log.Error().Err(err).Msg("Backtest failed")
		s.emit(&events.BacktestFailedData{PairID: pairID, Name: def.Name, Error: err.Error()})
		return nil, err
	}
	pair.Duration = time.Since(started)

	s.emit(&events.BacktestCompletedData{
		PairID:            pairID,
		StrategyRunID:     pair.Strategy.Run.ID,
		BaselineRunID:     pair.Baseline.Run.ID,
		StrategyReturnPct: pair.Strategy.Run.Summary.TotalReturnPct,
		BaselineReturnPct: pair.Baseline.Run.Summary.TotalReturnPct,
		ExcessReturnPct:   pair.Comparison.ExcessReturnPct,
		DurationMs:        pair.Duration.Milliseconds(),
	})
	log.Info().
		Float64("strategy_final_equity", pair.Strategy.Run.Summary.FinalEquity).
		Float64("strategy_return_pct", pair.Strategy.Run.Summary.TotalReturnPct).
		Float64("baseline_final_equity", pair.Baseline.Run.Summary.FinalEquity).
		Float64("baseline_return_pct", pair.Baseline.Run.Summary.TotalReturnPct).
		Float64("excess_return_pct", pair.Comparison.ExcessReturnPct).
		Dur("duration", pair.Duration).
		Msg("Backtest completed")

	return pair, nil
}

func (s *BacktestService) runPair(ctx context.Context, pairID string, def *definition.Definition, opts backtest.Options, portfolio domain.Portfolio) (*PairResult, error) {
	data, err := s.loader.Load(ctx, portfolio, def.RateSeries, opts.StartDate, opts.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}

	modes := []backtest.Options{opts, opts.BuyAndHold()}
	outcomes := make([]RunOutcome, len(modes))
	errs := make([]error, len(modes))

	var wg sync.WaitGroup
	for i, o := range modes {
		wg.Add(1)
		go func(i int, o backtest.Options) {
			defer wg.Done()
			outcomes[i], errs[i] = s.simulate(ctx, pairID, o, portfolio, data)
		}(i, o)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	pair := &PairResult{
		PairID:   pairID,
		Name:     def.Name,
		Strategy: outcomes[0],
		Baseline: outcomes[1],
	}

	for _, outcome := range []RunOutcome{pair.Strategy, pair.Baseline} {
		outcome.Run.PairID = pairID
		outcome.Run.Name = def.Name
		if err := s.store.Save(ctx, outcome.Run, outcome.Result); err != nil {
			return nil, fmt.Errorf("failed to save %s run: %w", outcome.Run.Mode, err)
		}
	}

	pair.Comparison = results.Compare(pair.Strategy.Run.Summary, pair.Baseline.Run.Summary)

	if def.Export && s.exporter != nil {
		pair.Exports = s.export(ctx, pair.Strategy, pair.Baseline)
	}

	return pair, nil
}

// simulate runs and compiles one engine
func (s *BacktestService) simulate(ctx context.Context, pairID string, opts backtest.Options, portfolio domain.Portfolio, data *domain.MarketData) (RunOutcome, error) {
	started := time.Now()
	mode := opts.Mode()

	engine, err := backtest.New(opts, portfolio, data, s.engineLog.With().Str("pair_id", pairID).Logger())
	if err != nil {
		return RunOutcome{}, err
	}
	engine.SetProgress(s.progressReporter(pairID, mode))

	if err := engine.Run(ctx); err != nil {
		metrics.RecordRun(metrics.RunStats{Mode: mode, Failed: true, Duration: time.Since(started)})
		return RunOutcome{}, fmt.Errorf("%s run interrupted: %w", mode, err)
	}

	result, err := results.Compile(engine)
	if err != nil {
		metrics.RecordRun(metrics.RunStats{Mode: mode, Failed: true, Duration: time.Since(started)})
		return RunOutcome{}, fmt.Errorf("%s run: %w", mode, err)
	}

	cache := engine.CacheStats()
	trades := make(map[string]int, len(result.Summary.TradesByAction))
	for action, n := range result.Summary.TradesByAction {
		trades[string(action)] = n
	}
	metrics.RecordRun(metrics.RunStats{
		Mode:        mode,
		Duration:    time.Since(started),
		Days:        engine.Days(),
		Trades:      trades,
		CacheHits:   cache.Hits,
		CacheMisses: cache.Misses,
	})

	return RunOutcome{
		Run: &runs.Run{
			Mode:    mode,
			Options: opts,
			Summary: result.Summary,
		},
		Result: result,
		Cache:  cache,
	}, nil
}

// progressReporter emits every progressInterval days and on the last day
func (s *BacktestService) progressReporter(pairID, mode string) backtest.ProgressFunc {
	interval := s.progressInterval
	if interval < 1 {
		return nil
	}
	return func(dayIndex, totalDays int, snapshot domain.EquitySnapshot) {
		if dayIndex%interval != 0 && dayIndex != totalDays {
			return
		}
		progress := 100 * float64(dayIndex) / float64(totalDays)
		s.log.Debug().
			Str("pair_id", pairID).
			Str("mode", mode).
			Int("day", dayIndex).
			Int("total", totalDays).
			Float64("equity", snapshot.TotalEquity).
			Msg("Backtest progress")
		s.emit(&events.BacktestProgressData{
			PairID:   pairID,
			Mode:     mode,
			Day:      dayIndex,
			Total:    totalDays,
			Date:     snapshot.Date.Format(domain.DateLayout),
			Equity:   snapshot.TotalEquity,
			Progress: progress,
		})
	}
}

func (s *BacktestService) export(ctx context.Context, outcomes ...RunOutcome) []*export.Report {
	var reports []*export.Report
	for _, outcome := range outcomes {
		report, err := s.exporter.Export(ctx, outcome.Run.ID, outcome.Result)
		if err != nil {
			s.log.Error().Err(err).Str("run_id", outcome.Run.ID).Msg("Export failed")
			if s.events != nil {
				s.events.EmitError("backtest", err, map[string]interface{}{"run_id": outcome.Run.ID})
			}
			continue
		}
		reports = append(reports, report)
		s.emit(&events.RunExportedData{RunID: outcome.Run.ID, Dir: report.Dir, Uploaded: report.Uploaded})
	}
	return reports
}

func (s *BacktestService) emit(data events.EventData) {
	if s.events == nil {
		return
	}
	s.events.EmitTyped("backtest", data)
}
