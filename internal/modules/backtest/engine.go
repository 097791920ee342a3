// Package backtest is the day-stepping portfolio simulation engine.
//
// An Engine owns all per-run state (cash, positions, the intrinsic value
// cache and the append-only logs). Each calendar day is processed in four
// steps: dividends, signal evaluation (with staged sells), buy execution and
// the equity snapshot. Buy-and-hold runs skip the signal and buy steps.
//
// Two engines never share mutable state; the market data they read is treated
// as immutable.
package backtest

import (
	"context"
	"fmt"
	"sort"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/allocation"
	"github.com/aristath/graham/pkg/formulas"
	"github.com/rs/zerolog"
)

// ProgressFunc observes the engine after each simulated day.
type ProgressFunc func(dayIndex, totalDays int, snapshot domain.EquitySnapshot)

// Engine simulates one run over the merged price calendar
type Engine struct {
	opts      Options
	portfolio domain.Portfolio
	data      *domain.MarketData
	log       zerolog.Logger
	progress  ProgressFunc

	calendar []Day
	next     int

	cash      float64
	positions map[string]int
	// sellLevel is the highest exit ladder level executed on the current position
	sellLevel map[string]int
	cache     *valueCache
	valued    map[string]bool

	initial   []domain.Position
	trades    []domain.Trade
	equity    []domain.EquitySnapshot
	dividends []domain.DividendRecord
}

// New validates opts and builds an engine with the initial allocation applied.
// Series in data must be chronological (see domain.MarketData.Normalize).
func New(opts Options, portfolio domain.Portfolio, data *domain.MarketData, log zerolog.Logger) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest options: %w", err)
	}
	if len(portfolio) == 0 {
		return nil, fmt.Errorf("portfolio is empty")
	}
	seen := make(map[string]bool, len(portfolio))
	for _, entry := range portfolio {
		if seen[entry.Ticker] {
			return nil, fmt.Errorf("duplicate ticker %s in portfolio", entry.Ticker)
		}
		seen[entry.Ticker] = true
	}
	if data == nil {
		data = domain.NewMarketData()
	}

	e := &Engine{
		opts:      opts,
		portfolio: append(domain.Portfolio(nil), portfolio...),
		data:      data,
		log:       log.With().Str("service", "backtest").Str("mode", opts.Mode()).Logger(),
		calendar:  BuildCalendar(portfolio, data.Prices, opts.StartDate, opts.EndDate),
		cash:      opts.InitialCapital,
		positions: make(map[string]int),
		sellLevel: make(map[string]int),
		cache:     newValueCache(opts.CacheMode),
		valued:    make(map[string]bool),
	}

	e.setupPortfolio()

	return e, nil
}

// setupPortfolio performs the initial strategic-weight allocation
func (e *Engine) setupPortfolio() {
	startPrices := StartPrices(e.portfolio, e.data.Prices, e.opts.StartDate, e.opts.EndDate)
	positions, cash := allocation.InitialAllocation(e.portfolio, startPrices, e.opts.InitialCapital)

	e.cash = cash
	for _, p := range positions {
		e.positions[p.Ticker] = p.Shares
	}
	e.initial = positions

	for _, entry := range e.portfolio {
		if _, ok := startPrices[entry.Ticker]; !ok {
			e.log.Warn().Str("ticker", entry.Ticker).Msg("No price in range, instrument not allocated")
		}
	}

	e.log.Info().
		Int("positions", len(positions)).
		Float64("cash", formulas.Round2(e.cash)).
		Int("days", len(e.calendar)).
		Msg("Portfolio set up")
}

// SetProgress registers an observer called after every day.
func (e *Engine) SetProgress(fn ProgressFunc) {
	e.progress = fn
}

// Run simulates every remaining day of the calendar. The context is checked
// between days; a cancelled run keeps the state of the last completed day and
// returns the context error.
func (e *Engine) Run(ctx context.Context) error {
	for !e.Done() {
		if err := ctx.Err(); err != nil {
			e.log.Warn().Err(err).Int("completed_days", e.next).Msg("Backtest interrupted")
			return err
		}
		e.Step()
	}

	if e.opts.UseStrategy {
		for _, entry := range e.portfolio {
			if !e.valued[entry.Ticker] {
				e.log.Warn().Str("ticker", entry.Ticker).Msg("No intrinsic value available during the run")
			}
		}
	}

	stats := e.cache.stats()
	e.log.Debug().
		Int("cache_entries", stats.Entries).
		Int("cache_hits", stats.Hits).
		Int("cache_misses", stats.Misses).
		Msg("Backtest finished")

	return nil
}

// Done reports whether every calendar day has been simulated.
func (e *Engine) Done() bool {
	return e.next >= len(e.calendar)
}

// Step simulates the next calendar day. It is a no-op once Done.
func (e *Engine) Step() {
	if e.Done() {
		return
	}
	day := e.calendar[e.next]

	e.processDividends(day)

	if e.opts.UseStrategy {
		candidates := e.evaluateTradingSignals(day)
		if len(candidates) > 0 {
			e.executeBuys(day, candidates)
		}
	}

	snapshot := e.snapshot(day)
	e.equity = append(e.equity, snapshot)
	e.next++

	if e.progress != nil {
		e.progress(e.next, len(e.calendar), snapshot)
	}
}

// snapshot values holdings at today's closes
func (e *Engine) snapshot(day Day) domain.EquitySnapshot {
	marketValue := 0.0
	for _, entry := range e.portfolio {
		shares := e.positions[entry.Ticker]
		if bar, ok := day.Bars[entry.Ticker]; ok && shares > 0 {
			marketValue += float64(shares) * bar.Close
		}
	}

	return domain.EquitySnapshot{
		Date:        day.Date,
		Cash:        formulas.Round2(e.cash),
		MarketValue: formulas.Round2(marketValue),
		TotalEquity: formulas.Round2(e.cash + marketValue),
	}
}

// Options returns the run configuration.
func (e *Engine) Options() Options { return e.opts }

// InitialCapital is the capital the run started with.
func (e *Engine) InitialCapital() float64 { return e.opts.InitialCapital }

// Cash is the current cash balance.
func (e *Engine) Cash() float64 { return e.cash }

// Days is the length of the merged calendar.
func (e *Engine) Days() int { return len(e.calendar) }

// Positions returns a copy of the share counts currently held.
func (e *Engine) Positions() map[string]int {
	out := make(map[string]int, len(e.positions))
	for t, s := range e.positions {
		out[t] = s
	}
	return out
}

// HeldTickers lists held tickers alphabetically.
func (e *Engine) HeldTickers() []string {
	tickers := make([]string, 0, len(e.positions))
	for t := range e.positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// InitialPositions returns the positions opened by the initial allocation.
func (e *Engine) InitialPositions() []domain.Position {
	return append([]domain.Position(nil), e.initial...)
}

// Trades returns a copy of the trade log.
func (e *Engine) Trades() []domain.Trade {
	return append([]domain.Trade(nil), e.trades...)
}

// EquityCurve returns a copy of the daily snapshots.
func (e *Engine) EquityCurve() []domain.EquitySnapshot {
	return append([]domain.EquitySnapshot(nil), e.equity...)
}

// Dividends returns a copy of the dividend log.
func (e *Engine) Dividends() []domain.DividendRecord {
	return append([]domain.DividendRecord(nil), e.dividends...)
}

// CacheStats reports intrinsic value cache usage so far.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.stats()
}
