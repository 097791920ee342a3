// Package marketdata stores and loads the inputs of a backtest: daily prices
// with dividends, annual net income and EPS per ticker, and macro rate series.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/graham/internal/database"
	"github.com/aristath/graham/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads and writes history.db. Dates are stored as Unix timestamps
// at midnight UTC.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// Coverage summarises what the store holds for one ticker.
type Coverage struct {
	Ticker      string    `json:"ticker"`
	Prices      int       `json:"prices"`
	FirstPrice  time.Time `json:"first_price"`
	LastPrice   time.Time `json:"last_price"`
	ProfitYears int       `json:"profit_years"`
	EPSYears    int       `json:"eps_years"`
}

// NewRepository creates a history store repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "marketdata").Logger(),
	}
}

func normTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func toUnix(t time.Time) int64 {
	return domain.Date(t).Unix()
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// UpsertPrices inserts or replaces daily prices for ticker in one transaction
func (r *Repository) UpsertPrices(ctx context.Context, ticker string, prices []domain.PricePoint) (int, error) {
	ticker = normTicker(ticker)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_prices (ticker, date, close, dividend)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := stmt.ExecContext(ctx, ticker, toUnix(p.Date), p.Close, p.Dividend); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", p.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert prices for %s: %w", ticker, err)
	}

	r.log.Debug().Str("ticker", ticker).Int("count", len(prices)).Msg("Stored daily prices")
	return len(prices), nil
}

// GetPrices returns the prices of ticker in [from, to], oldest first. A zero
// bound is open.
func (r *Repository) GetPrices(ctx context.Context, ticker string, from, to time.Time) ([]domain.PricePoint, error) {
	query := "SELECT date, close, dividend FROM daily_prices WHERE ticker = ?"
	args := []interface{}{normTicker(ticker)}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, toUnix(from))
	}
	if !to.IsZero() {
		query += " AND date <= ?"
		args = append(args, toUnix(to))
	}
	query += " ORDER BY date ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var date int64
		if err := rows.Scan(&date, &p.Close, &p.Dividend); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		p.Date = fromUnix(date)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return prices, nil
}

// UpsertNetIncome stores annual net income for ticker
func (r *Repository) UpsertNetIncome(ctx context.Context, ticker string, points []domain.ProfitPoint) (int, error) {
	values := make(map[int]float64, len(points))
	for _, p := range points {
		values[p.Year] = p.NetIncome
	}
	return r.upsertAnnual(ctx, "net_income", ticker, values)
}

// GetNetIncome returns the net income history of ticker, oldest year first
func (r *Repository) GetNetIncome(ctx context.Context, ticker string) ([]domain.ProfitPoint, error) {
	var points []domain.ProfitPoint
	err := r.readAnnual(ctx, "net_income", ticker, func(year int, value float64) {
		points = append(points, domain.ProfitPoint{Year: year, NetIncome: value})
	})
	return points, err
}

// UpsertEPS stores annual earnings per share for ticker
func (r *Repository) UpsertEPS(ctx context.Context, ticker string, eps map[int]float64) (int, error) {
	return r.upsertAnnual(ctx, "eps", ticker, eps)
}

// GetEPS returns earnings per share of ticker keyed by year
func (r *Repository) GetEPS(ctx context.Context, ticker string) (map[int]float64, error) {
	eps := make(map[int]float64)
	err := r.readAnnual(ctx, "eps", ticker, func(year int, value float64) {
		eps[year] = value
	})
	return eps, err
}

// table is one of the two annual tables; never user input
func (r *Repository) upsertAnnual(ctx context.Context, table, ticker string, values map[int]float64) (int, error) {
	ticker = normTicker(ticker)

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO "+table+" (ticker, year, value) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for year, value := range values {
			if _, err := stmt.ExecContext(ctx, ticker, year, value); err != nil {
				return fmt.Errorf("failed to insert %s for %d: %w", table, year, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s for %s: %w", table, ticker, err)
	}

	r.log.Debug().Str("ticker", ticker).Str("table", table).Int("count", len(values)).Msg("Stored annual series")
	return len(values), nil
}

func (r *Repository) readAnnual(ctx context.Context, table, ticker string, fn func(year int, value float64)) error {
	rows, err := r.db.QueryContext(ctx, "SELECT year, value FROM "+table+" WHERE ticker = ? ORDER BY year ASC", normTicker(ticker))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var year int
		var value float64
		if err := rows.Scan(&year, &value); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		fn(year, value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating %s: %w", table, err)
	}
	return nil
}

// UpsertRates stores observations of a rate series
func (r *Repository) UpsertRates(ctx context.Context, series string, rates []domain.RatePoint) (int, error) {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO rates (series, date, value) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, rate := range rates {
			if _, err := stmt.ExecContext(ctx, series, toUnix(rate.Date), rate.Value); err != nil {
				return fmt.Errorf("failed to insert rate for %s: %w", rate.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert rates for series %s: %w", series, err)
	}

	r.log.Debug().Str("series", series).Int("count", len(rates)).Msg("Stored rate observations")
	return len(rates), nil
}

// GetRates returns the whole rate series, oldest first
func (r *Repository) GetRates(ctx context.Context, series string) ([]domain.RatePoint, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT date, value FROM rates WHERE series = ? ORDER BY date ASC", series)
	if err != nil {
		return nil, fmt.Errorf("failed to query rates: %w", err)
	}
	defer rows.Close()

	var rates []domain.RatePoint
	for rows.Next() {
		var date int64
		var rate domain.RatePoint
		if err := rows.Scan(&date, &rate.Value); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		rate.Date = fromUnix(date)
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rates: %w", err)
	}

	return rates, nil
}

// LatestRateDate returns the date of the newest observation of series. ok is
// false when the series is empty.
func (r *Repository) LatestRateDate(ctx context.Context, series string) (time.Time, bool, error) {
	var latest sql.NullInt64
	err := r.db.QueryRowContext(ctx, "SELECT MAX(date) FROM rates WHERE series = ?", series).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest rate date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(latest.Int64), true, nil
}

// Tickers lists every ticker with at least one stored price
func (r *Repository) Tickers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT ticker FROM daily_prices ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to query tickers: %w", err)
	}
	defer rows.Close()

	var tickers []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// GetCoverage reports the stored history of ticker
func (r *Repository) GetCoverage(ctx context.Context, ticker string) (*Coverage, error) {
	c := &Coverage{Ticker: normTicker(ticker)}

	var first, last sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), MIN(date), MAX(date) FROM daily_prices WHERE ticker = ?", c.Ticker,
	).Scan(&c.Prices, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to query price coverage: %w", err)
	}
	if first.Valid {
		c.FirstPrice = fromUnix(first.Int64)
	}
	if last.Valid {
		c.LastPrice = fromUnix(last.Int64)
	}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM net_income WHERE ticker = ?", c.Ticker).Scan(&c.ProfitYears); err != nil {
		return nil, fmt.Errorf("failed to query net income coverage: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM eps WHERE ticker = ?", c.Ticker).Scan(&c.EPSYears); err != nil {
		return nil, fmt.Errorf("failed to query eps coverage: %w", err)
	}

	return c, nil
}
