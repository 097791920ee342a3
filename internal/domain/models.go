// Package domain provides the value types shared by the valuation model, the
// simulation engine, the result compiler and the data adapters.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used in files, keys and the API.
const DateLayout = "2006-01-02"

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// MustDate parses a YYYY-MM-DD date and panics on failure. Intended for fixtures.
func MustDate(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

// PricePoint is one trading day of an instrument.
// Dividend is the cash distribution per share paid on Date, zero otherwise.
type PricePoint struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Dividend float64   `json:"dividend"`
}

// ProfitPoint is the net income reported for a fiscal year.
type ProfitPoint struct {
	Year      int     `json:"year"`
	NetIncome float64 `json:"net_income"`
}

// RatePoint is one observation of the macro interest rate, in percent.
type RatePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// PortfolioEntry is an instrument with its relative strategic weight.
type PortfolioEntry struct {
	Ticker string `json:"ticker"`
	Weight int    `json:"weight"`
}

// Portfolio is the ordered basket being simulated. Order is significant:
// signals are evaluated and buys executed in portfolio order.
type Portfolio []PortfolioEntry

// Tickers returns the tickers in portfolio order.
func (p Portfolio) Tickers() []string {
	tickers := make([]string, len(p))
	for i, e := range p {
		tickers[i] = e.Ticker
	}
	return tickers
}

// TotalWeight sums the strategic weights.
func (p Portfolio) TotalWeight() int {
	total := 0
	for _, e := range p {
		total += e.Weight
	}
	return total
}

// Weight returns the strategic weight of ticker, or 0 if it is not in the portfolio.
func (p Portfolio) Weight(ticker string) int {
	for _, e := range p {
		if e.Ticker == ticker {
			return e.Weight
		}
	}
	return 0
}

// TradeAction identifies what a trade record did.
type TradeAction string

const (
	ActionBuy              TradeAction = "BUY"
	ActionSell             TradeAction = "SELL"
	ActionDividendReinvest TradeAction = "DIVIDEND_REINVEST"
)

// Trade is an append-only trade log entry. Metadata fields that do not apply
// to the action are left at zero.
type Trade struct {
	Date   time.Time   `json:"date"`
	Ticker string      `json:"ticker"`
	Action TradeAction `json:"action"`
	Shares int         `json:"shares"`
	Price  float64     `json:"price"`
	Amount float64     `json:"amount"`

	// BUY and SELL
	IntrinsicValue float64 `json:"intrinsic_value,omitempty"`
	// BUY
	WPP        float64 `json:"wpp,omitempty"`
	Discount   float64 `json:"discount,omitempty"`
	Allocation float64 `json:"allocation,omitempty"`
	// SELL
	Level        int     `json:"level,omitempty"`
	ProfitMargin float64 `json:"profit_margin,omitempty"`
}

// EquitySnapshot is the end-of-day state of the portfolio.
type EquitySnapshot struct {
	Date        time.Time `json:"date"`
	Cash        float64   `json:"cash"`
	MarketValue float64   `json:"market_value"`
	TotalEquity float64   `json:"total_equity"`
}

// DividendRecord logs a dividend payment on a held position.
type DividendRecord struct {
	Date             time.Time `json:"date"`
	Ticker           string    `json:"ticker"`
	SharesHeld       int       `json:"shares_held"`
	DividendPerShare float64   `json:"dividend_per_share"`
	TotalAmount      float64   `json:"total_amount"`
	ReinvestedShares int       `json:"reinvested_shares,omitempty"`
}

// Position is a holding opened by the initial allocation.
type Position struct {
	Ticker string  `json:"ticker"`
	Weight int     `json:"weight"`
	Shares int     `json:"shares"`
	Price  float64 `json:"price"`
	Cost   float64 `json:"cost"`
}
