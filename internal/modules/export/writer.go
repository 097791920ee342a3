// Package export writes a compiled run as CSV files and optionally uploads
// them to S3-compatible object storage.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/results"
)

// File names written for every run
const (
	EquityFile    = "equity_curve.csv"
	TradesFile    = "trades.csv"
	DividendsFile = "dividends.csv"
	SummaryFile   = "summary.csv"
)

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeAll(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteEquityCSV writes the equity curve
func WriteEquityCSV(w io.Writer, curve []domain.EquitySnapshot) error {
	rows := make([][]string, len(curve))
	for i, s := range curve {
		rows[i] = []string{s.Date.Format(domain.DateLayout), ftoa(s.Cash), ftoa(s.MarketValue), ftoa(s.TotalEquity)}
	}
	return writeAll(w, []string{"date", "cash", "market_value", "total_equity"}, rows)
}

// WriteTradesCSV writes the trade log
func WriteTradesCSV(w io.Writer, trades []domain.Trade) error {
	rows := make([][]string, len(trades))
	for i, t := range trades {
		rows[i] = []string{
			t.Date.Format(domain.DateLayout), t.Ticker, string(t.Action), strconv.Itoa(t.Shares),
			ftoa(t.Price), ftoa(t.Amount), ftoa(t.IntrinsicValue), ftoa(t.WPP), ftoa(t.Discount),
			ftoa(t.Allocation), strconv.Itoa(t.Level), ftoa(t.ProfitMargin),
		}
	}
	return writeAll(w, []string{
		"date", "ticker", "action", "shares", "price", "amount", "intrinsic_value",
		"wpp", "discount", "allocation", "level", "profit_margin",
	}, rows)
}

// WriteDividendsCSV writes the dividend log
func WriteDividendsCSV(w io.Writer, dividends []domain.DividendRecord) error {
	rows := make([][]string, len(dividends))
	for i, d := range dividends {
		rows[i] = []string{
			d.Date.Format(domain.DateLayout), d.Ticker, strconv.Itoa(d.SharesHeld),
			ftoa(d.DividendPerShare), ftoa(d.TotalAmount), strconv.Itoa(d.ReinvestedShares),
		}
	}
	return writeAll(w, []string{"date", "ticker", "shares_held", "dividend_per_share", "total_amount", "reinvested_shares"}, rows)
}

// WriteSummaryCSV writes the summary as metric,value rows
func WriteSummaryCSV(w io.Writer, s results.Summary) error {
	rows := [][]string{
		{"initial_capital", ftoa(s.InitialCapital)},
		{"final_equity", ftoa(s.FinalEquity)},
		{"total_return_pct", ftoa(s.TotalReturnPct)},
		{"total_dividends", ftoa(s.TotalDividends)},
		{"trade_count", strconv.Itoa(s.TradeCount)},
		{"start_date", s.StartDate.Format(domain.DateLayout)},
		{"end_date", s.EndDate.Format(domain.DateLayout)},
		{"days", strconv.Itoa(s.Days)},
		{"max_drawdown", ftoa(s.MaxDrawdown)},
		{"volatility", ftoa(s.Volatility)},
	}
	for _, action := range []domain.TradeAction{domain.ActionBuy, domain.ActionSell, domain.ActionDividendReinvest} {
		rows = append(rows, []string{"trades_" + string(action), strconv.Itoa(s.TradesByAction[action])})
	}
	if s.SharpeRatio != nil {
		rows = append(rows, []string{"sharpe_ratio", ftoa(*s.SharpeRatio)})
	}
	if s.CAGR != nil {
		rows = append(rows, []string{"cagr", ftoa(*s.CAGR)})
	}
	return writeAll(w, []string{"metric", "value"}, rows)
}

// WriteRun writes the four CSV files of result into dir, creating it.
// Returns the written paths.
func WriteRun(dir string, result *results.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{EquityFile, func(w io.Writer) error { return WriteEquityCSV(w, result.EquityCurve) }},
		{TradesFile, func(w io.Writer) error { return WriteTradesCSV(w, result.Trades) }},
		{DividendsFile, func(w io.Writer) error { return WriteDividendsCSV(w, result.Dividends) }},
		{SummaryFile, func(w io.Writer) error { return WriteSummaryCSV(w, result.Summary) }},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := writeFile(path, f.write); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
