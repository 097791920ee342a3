// Package runs persists compiled backtest runs in ledger.db. Runs are written
// once and never updated.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/graham/internal/database"
	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/backtest"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Run is the stored header of one simulation
type Run struct {
	ID        string           `json:"id"`
	PairID    string           `json:"pair_id"` // Shared by a strategy run and its baseline
	Name      string           `json:"name"`
	Mode      string           `json:"mode"`
	CreatedAt time.Time        `json:"created_at"`
	Options   backtest.Options `json:"options"`
	Summary   results.Summary  `json:"summary"`
}

// Repository handles ledger database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

const runColumns = `id, pair_id, name, mode, created_at, options, summary`

// NewRepository creates a run ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// NewPairID returns a fresh identifier for a strategy/baseline pair.
func NewPairID() string {
	return uuid.New().String()
}

// Save stores run and the logs of result in one transaction. An empty ID is
// assigned; CreatedAt defaults to now.
func (r *Repository) Save(ctx context.Context, run *Run, result *results.Result) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.PairID == "" {
		run.PairID = run.ID
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if run.Mode == "" {
		run.Mode = run.Options.Mode()
	}
	run.Summary = result.Summary

	options, err := msgpack.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("failed to encode run options: %w", err)
	}
	summary, err := msgpack.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs
			(id, pair_id, name, mode, created_at, start_date, end_date, initial_capital,
			 final_equity, total_return_pct, total_dividends, trade_count, options, summary)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			run.ID, run.PairID, run.Name, run.Mode, run.CreatedAt.Unix(),
			run.Options.StartDate.Unix(), run.Options.EndDate.Unix(),
			result.Summary.InitialCapital, result.Summary.FinalEquity, result.Summary.TotalReturnPct,
			result.Summary.TotalDividends, result.Summary.TradeCount,
			options, summary,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}

		if err := insertPositions(ctx, tx, run.ID, result.InitialPositions); err != nil {
			return err
		}
		if err := insertEquity(ctx, tx, run.ID, result.EquityCurve); err != nil {
			return err
		}
		if err := insertTrades(ctx, tx, run.ID, result.Trades); err != nil {
			return err
		}
		return insertDividends(ctx, tx, run.ID, result.Dividends)
	})
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	r.log.Info().
		Str("run_id", run.ID).
		Str("pair_id", run.PairID).
		Str("mode", run.Mode).
		Int("days", len(result.EquityCurve)).
		Int("trades", len(result.Trades)).
		Msg("Run saved")

	return nil
}

func insertPositions(ctx context.Context, tx *sql.Tx, runID string, positions []domain.Position) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_positions (run_id, ticker, weight, shares, price, cost) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare positions statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range positions {
		if _, err := stmt.ExecContext(ctx, runID, p.Ticker, p.Weight, p.Shares, p.Price, p.Cost); err != nil {
			return fmt.Errorf("failed to insert position %s: %w", p.Ticker, err)
		}
	}
	return nil
}

func insertEquity(ctx context.Context, tx *sql.Tx, runID string, curve []domain.EquitySnapshot) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_equity (run_id, date, cash, market_value, total_equity) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare equity statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range curve {
		if _, err := stmt.ExecContext(ctx, runID, s.Date.Unix(), s.Cash, s.MarketValue, s.TotalEquity); err != nil {
			return fmt.Errorf("failed to insert equity snapshot: %w", err)
		}
	}
	return nil
}

func insertTrades(ctx context.Context, tx *sql.Tx, runID string, trades []domain.Trade) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_trades
		(run_id, seq, date, ticker, action, shares, price, amount,
		 intrinsic_value, wpp, discount, allocation, level, profit_margin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare trades statement: %w", err)
	}
	defer stmt.Close()

	for i, t := range trades {
		_, err := stmt.ExecContext(ctx, runID, i, t.Date.Unix(), t.Ticker, string(t.Action), t.Shares,
			t.Price, t.Amount, t.IntrinsicValue, t.WPP, t.Discount, t.Allocation, t.Level, t.ProfitMargin)
		if err != nil {
			return fmt.Errorf("failed to insert trade %d: %w", i, err)
		}
	}
	return nil
}

func insertDividends(ctx context.Context, tx *sql.Tx, runID string, dividends []domain.DividendRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_dividends
		(run_id, seq, date, ticker, shares_held, dividend_per_share, total_amount, reinvested_shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare dividends statement: %w", err)
	}
	defer stmt.Close()

	for i, d := range dividends {
		_, err := stmt.ExecContext(ctx, runID, i, d.Date.Unix(), d.Ticker, d.SharesHeld,
			d.DividendPerShare, d.TotalAmount, d.ReinvestedShares)
		if err != nil {
			return fmt.Errorf("failed to insert dividend %d: %w", i, err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var createdAt int64
	var options, summary []byte

	if err := row.Scan(&run.ID, &run.PairID, &run.Name, &run.Mode, &createdAt, &options, &summary); err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.Unix(createdAt, 0).UTC()

	if err := msgpack.Unmarshal(options, &run.Options); err != nil {
		return Run{}, fmt.Errorf("failed to decode options of run %s: %w", run.ID, err)
	}
	if err := msgpack.Unmarshal(summary, &run.Summary); err != nil {
		return Run{}, fmt.Errorf("failed to decode summary of run %s: %w", run.ID, err)
	}

	// msgpack decodes timestamps in the local zone
	run.Options.StartDate = run.Options.StartDate.UTC()
	run.Options.EndDate = run.Options.EndDate.UTC()
	run.Summary.StartDate = run.Summary.StartDate.UTC()
	run.Summary.EndDate = run.Summary.EndDate.UTC()

	return run, nil
}

// Get returns the run with id, or ErrNotFound
func (r *Repository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// List returns the most recent runs first; limit <= 0 returns all of them
func (r *Repository) List(ctx context.Context, limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, id"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryRuns(ctx, query, args...)
}

// ListPair returns the runs sharing pairID, strategy first
func (r *Repository) ListPair(ctx context.Context, pairID string) ([]Run, error) {
	return r.queryRuns(ctx,
		"SELECT "+runColumns+" FROM runs WHERE pair_id = ? ORDER BY CASE mode WHEN 'strategy' THEN 0 ELSE 1 END, id",
		pairID)
}

func (r *Repository) queryRuns(ctx context.Context, query string, args ...interface{}) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

func (r *Repository) exists(ctx context.Context, id string) error {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs WHERE id = ?", id).Scan(&n); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// EquityCurve returns the stored snapshots of run id
func (r *Repository) EquityCurve(ctx context.Context, id string) ([]domain.EquitySnapshot, error) {
	if err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT date, cash, market_value, total_equity FROM run_equity WHERE run_id = ? ORDER BY date", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity curve: %w", err)
	}
	defer rows.Close()

	curve := []domain.EquitySnapshot{}
	for rows.Next() {
		var s domain.EquitySnapshot
		var date int64
		if err := rows.Scan(&date, &s.Cash, &s.MarketValue, &s.TotalEquity); err != nil {
			return nil, fmt.Errorf("failed to scan equity snapshot: %w", err)
		}
		s.Date = time.Unix(date, 0).UTC()
		curve = append(curve, s)
	}
	return curve, rows.Err()
}

// Trades returns the stored trade log of run id
func (r *Repository) Trades(ctx context.Context, id string) ([]domain.Trade, error) {
	if err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT date, ticker, action, shares, price, amount, intrinsic_value, wpp, discount,
		       allocation, level, profit_margin
		FROM run_trades WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		var t domain.Trade
		var date int64
		var action string
		err := rows.Scan(&date, &t.Ticker, &action, &t.Shares, &t.Price, &t.Amount, &t.IntrinsicValue,
			&t.WPP, &t.Discount, &t.Allocation, &t.Level, &t.ProfitMargin)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Date = time.Unix(date, 0).UTC()
		t.Action = domain.TradeAction(action)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Dividends returns the stored dividend log of run id
func (r *Repository) Dividends(ctx context.Context, id string) ([]domain.DividendRecord, error) {
	if err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT date, ticker, shares_held, dividend_per_share, total_amount, reinvested_shares
		FROM run_dividends WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	dividends := []domain.DividendRecord{}
	for rows.Next() {
		var d domain.DividendRecord
		var date int64
		if err := rows.Scan(&date, &d.Ticker, &d.SharesHeld, &d.DividendPerShare, &d.TotalAmount, &d.ReinvestedShares); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		d.Date = time.Unix(date, 0).UTC()
		dividends = append(dividends, d)
	}
	return dividends, rows.Err()
}

// InitialPositions returns the positions opened at the start of run id
func (r *Repository) InitialPositions(ctx context.Context, id string) ([]domain.Position, error) {
	if err := r.exists(ctx, id); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT ticker, weight, shares, price, cost FROM run_positions WHERE run_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	positions := []domain.Position{}
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(&p.Ticker, &p.Weight, &p.Shares, &p.Price, &p.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Result rebuilds the compiled result of run id from its stored rows
func (r *Repository) Result(ctx context.Context, id string) (*results.Result, error) {
	run, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := &results.Result{Summary: run.Summary}
	if result.InitialPositions, err = r.InitialPositions(ctx, id); err != nil {
		return nil, err
	}
	if result.EquityCurve, err = r.EquityCurve(ctx, id); err != nil {
		return nil, err
	}
	if result.Trades, err = r.Trades(ctx, id); err != nil {
		return nil, err
	}
	if result.Dividends, err = r.Dividends(ctx, id); err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes run id and its rows
func (r *Repository) Delete(ctx context.Context, id string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, table := range []string{"run_positions", "run_equity", "run_trades", "run_dividends"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}
