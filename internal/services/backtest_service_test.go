package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/modules/export"
	"github.com/aristath/graham/internal/modules/marketdata"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/aristath/graham/internal/modules/runs"
	testingpkg "github.com/aristath/graham/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	mu     sync.Mutex
	counts map[events.EventType]int
	last   map[events.EventType]*events.Event
}

func recordEvents(bus *events.Bus) *eventRecorder {
	r := &eventRecorder{
		counts: make(map[events.EventType]int),
		last:   make(map[events.EventType]*events.Event),
	}
	bus.SubscribeAll(func(e *events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.counts[e.Type]++
		r.last[e.Type] = e
	})
	return r
}

func (r *eventRecorder) count(t events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[t]
}

type fixture struct {
	service  *BacktestService
	runs     *runs.Repository
	recorder *eventRecorder
	history  *marketdata.Repository
}

func setupService(t *testing.T, exportDir string) *fixture {
	t.Helper()
	log := zerolog.Nop()

	historyDB := testingpkg.NewTestDB(t, "history")
	ledgerDB := testingpkg.NewTestDB(t, "ledger")

	history := marketdata.NewRepository(historyDB.Conn(), log)
	runRepo := runs.NewRepository(ledgerDB.Conn(), log)

	bus := events.NewBus(log)
	manager := events.NewManager(bus, log)

	var exporter RunExporter
	if exportDir != "" {
		exporter = export.NewExporter(exportDir, nil, "", log)
	}

	service := NewBacktestService(marketdata.NewLoader(history, log), runRepo, exporter, manager, log)
	return &fixture{service: service, runs: runRepo, recorder: recordEvents(bus), history: history}
}

// seed stores one valued ticker: intrinsic value 85, buy band 42.5, sell band 127.5
func seed(t *testing.T, repo *marketdata.Repository) {
	t.Helper()
	ctx := context.Background()

	prices := testingpkg.PricePath("2020-03-02", 80, 130, 145, 200, 200, 200, 40, 60)
	prices[2].Dividend = 1.5
	data := testingpkg.ValueMarket("A", 10, prices)

	_, err := repo.UpsertPrices(ctx, "A", data.Prices["A"])
	require.NoError(t, err)
	_, err = repo.UpsertNetIncome(ctx, "A", data.Profits["A"])
	require.NoError(t, err)
	_, err = repo.UpsertEPS(ctx, "A", data.EPS["A"])
	require.NoError(t, err)
	_, err = repo.UpsertRates(ctx, "4189", data.Rates)
	require.NoError(t, err)
}

func sampleDefinition() *definition.Definition {
	def := definition.New(definition.StandardDefaults())
	def.Name = "sample"
	def.StartDate = "2020-01-01"
	def.EndDate = "2020-12-31"
	def.Portfolio = []definition.PortfolioEntry{{Ticker: "A", Weight: 1}}
	return def
}

func TestRunPair(t *testing.T) {
	ctx := context.Background()
	f := setupService(t, "")
	seed(t, f.history)
	f.service.SetProgressInterval(1)

	pair, err := f.service.RunPair(ctx, sampleDefinition())
	require.NoError(t, err)

	assert.NotEmpty(t, pair.PairID)
	assert.Equal(t, "sample", pair.Name)
	assert.Equal(t, "strategy", pair.Strategy.Run.Mode)
	assert.Equal(t, "buy_and_hold", pair.Baseline.Run.Mode)
	assert.NotEqual(t, pair.Strategy.Run.ID, pair.Baseline.Run.ID)

	assert.NotEmpty(t, pair.Strategy.Result.Trades)
	assert.Empty(t, pair.Baseline.Result.Trades)
	assert.Equal(t, pair.Strategy.Result.InitialPositions, pair.Baseline.Result.InitialPositions)
	assert.Zero(t, pair.Baseline.Cache.Entries)
	assert.Positive(t, pair.Strategy.Cache.Entries)

	assert.Equal(t, results.Compare(pair.Strategy.Run.Summary, pair.Baseline.Run.Summary), pair.Comparison)
	assert.Empty(t, pair.Exports)

	stored, err := f.runs.ListPair(ctx, pair.PairID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, pair.Strategy.Run.ID, stored[0].ID)
	assert.Equal(t, pair.Baseline.Run.ID, stored[1].ID)
	assert.Equal(t, "sample", stored[1].Name)

	trades, err := f.runs.Trades(ctx, pair.Strategy.Run.ID)
	require.NoError(t, err)
	assert.Len(t, trades, len(pair.Strategy.Result.Trades))

	assert.Equal(t, 1, f.recorder.count(events.BacktestStarted))
	assert.Equal(t, 1, f.recorder.count(events.BacktestCompleted))
	assert.Equal(t, 0, f.recorder.count(events.BacktestFailed))
	assert.Equal(t, 16, f.recorder.count(events.BacktestProgress), "one event per day for each of the two runs")

	completed := f.recorder.last[events.BacktestCompleted]
	assert.Equal(t, pair.PairID, completed.Data["pair_id"])
	assert.Equal(t, pair.Strategy.Run.ID, completed.Data["strategy_run_id"])
}

func TestRunPair_ProgressInterval(t *testing.T) {
	f := setupService(t, "")
	seed(t, f.history)
	f.service.SetProgressInterval(5)

	_, err := f.service.RunPair(context.Background(), sampleDefinition())
	require.NoError(t, err)

	// Day 5 and the last day (8) for each run
	assert.Equal(t, 4, f.recorder.count(events.BacktestProgress))
}

func TestRunPair_Export(t *testing.T) {
	dir := t.TempDir()
	f := setupService(t, dir)
	seed(t, f.history)

	def := sampleDefinition()
	def.Export = true

	pair, err := f.service.RunPair(context.Background(), def)
	require.NoError(t, err)
	require.Len(t, pair.Exports, 2)

	for _, report := range pair.Exports {
		for _, file := range report.Files {
			_, err := os.Stat(file)
			assert.NoError(t, err)
		}
	}
	assert.Equal(t, 2, f.recorder.count(events.RunExported))
}

func TestRunPair_NoPrices(t *testing.T) {
	f := setupService(t, "")

	_, err := f.service.RunPair(context.Background(), sampleDefinition())
	require.Error(t, err)
	assert.ErrorIs(t, err, marketdata.ErrNoPrices)
	assert.Equal(t, 1, f.recorder.count(events.BacktestFailed))
	assert.Equal(t, 0, f.recorder.count(events.BacktestCompleted))
}

func TestRunPair_NoTradingDaysInRange(t *testing.T) {
	f := setupService(t, "")
	seed(t, f.history)

	// Prices exist but none fall inside the range
	def := sampleDefinition()
	def.StartDate = "2021-01-01"
	def.EndDate = "2021-12-31"

	_, err := f.service.RunPair(context.Background(), def)
	assert.ErrorIs(t, err, marketdata.ErrNoPrices)
}

func TestRunPair_InvalidDefinition(t *testing.T) {
	f := setupService(t, "")

	def := sampleDefinition()
	def.SafetyMargin = 2

	_, err := f.service.RunPair(context.Background(), def)
	assert.ErrorIs(t, err, definition.ErrInvalid)
	assert.Equal(t, 0, f.recorder.count(events.BacktestStarted))
}

type staticLoader struct {
	data *domain.MarketData
}

func (l staticLoader) Load(ctx context.Context, _ domain.Portfolio, _ string, _, _ time.Time) (*domain.MarketData, error) {
	return l.data, nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, *runs.Run, *results.Result) error {
	return errors.New("disk full")
}

func fixtureData() *domain.MarketData {
	return testingpkg.ValueMarket("A", 10, testingpkg.FlatPrices("2020-01-01", "2020-12-31", 60))
}

func TestRunPair_Cancelled(t *testing.T) {
	service := NewBacktestService(staticLoader{data: fixtureData()}, failingStore{}, nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := service.RunPair(ctx, sampleDefinition())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPair_StoreFailure(t *testing.T) {
	service := NewBacktestService(staticLoader{data: fixtureData()}, failingStore{}, nil, nil, zerolog.Nop())

	_, err := service.RunPair(context.Background(), sampleDefinition())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save strategy run")
}
