package backtest

import (
	"errors"
	"fmt"
	"time"
)

// DividendMode selects what happens to a cash distribution on a held position.
type DividendMode string

const (
	// DividendCash credits shares x dividend to cash.
	DividendCash DividendMode = "cash"
	// DividendReinvest credits the dividend and immediately buys whole shares at the close.
	DividendReinvest DividendMode = "reinvest"
)

// CacheMode selects the intrinsic value cache key.
type CacheMode string

const (
	// CacheYear keys by calendar year and the rate observations in the averaging window.
	CacheYear CacheMode = "year"
	// CacheDay keys by calendar date.
	CacheDay CacheMode = "day"
	// CacheOff recomputes on every lookup.
	CacheOff CacheMode = "off"
)

// Defaults for Options
const (
	DefaultSafetyMargin      = 0.50
	DefaultInitialCapital    = 10000.0
	DefaultMinCashMultiplier = 10.0
)

// Options configures one simulation run
type Options struct {
	SafetyMargin      float64      `json:"safety_margin"`
	InitialCapital    float64      `json:"initial_capital"`
	StartDate         time.Time    `json:"start_date"`
	EndDate           time.Time    `json:"end_date"`
	MinCashMultiplier float64      `json:"min_cash_multiplier"` // Buys need cash > multiplier x price
	UseStrategy       bool         `json:"use_strategy"`        // false = buy and hold
	DividendMode      DividendMode `json:"dividend_mode"`
	CacheMode         CacheMode    `json:"cache_mode"`
	// ProfitLookbackYears limits the net income history used for growth; 0 uses all of it.
	ProfitLookbackYears int `json:"profit_lookback_years"`
}

// DefaultOptions returns a strategy run with the default parameters. Dates are left zero.
func DefaultOptions() Options {
	return Options{
		SafetyMargin:      DefaultSafetyMargin,
		InitialCapital:    DefaultInitialCapital,
		MinCashMultiplier: DefaultMinCashMultiplier,
		UseStrategy:       true,
		DividendMode:      DividendCash,
		CacheMode:         CacheYear,
	}
}

// Mode names the run for logs and storage.
func (o Options) Mode() string {
	if o.UseStrategy {
		return "strategy"
	}
	return "buy_and_hold"
}

// BuyAndHold returns a copy of o with the strategy disabled.
func (o Options) BuyAndHold() Options {
	o.UseStrategy = false
	return o
}

// Validate checks the options are usable
func (o Options) Validate() error {
	var errs []error

	if o.InitialCapital <= 0 {
		errs = append(errs, fmt.Errorf("initial capital must be positive, got %v", o.InitialCapital))
	}
	if o.SafetyMargin <= 0 || o.SafetyMargin >= 1 {
		errs = append(errs, fmt.Errorf("safety margin must be in (0, 1), got %v", o.SafetyMargin))
	}
	if o.MinCashMultiplier < 0 {
		errs = append(errs, fmt.Errorf("minimum cash multiplier must not be negative, got %v", o.MinCashMultiplier))
	}
	if o.StartDate.IsZero() || o.EndDate.IsZero() {
		errs = append(errs, errors.New("start and end dates are required"))
	} else if o.EndDate.Before(o.StartDate) {
		errs = append(errs, fmt.Errorf("end date %s is before start date %s",
			o.EndDate.Format("2006-01-02"), o.StartDate.Format("2006-01-02")))
	}
	switch o.DividendMode {
	case DividendCash, DividendReinvest:
	default:
		errs = append(errs, fmt.Errorf("unknown dividend mode %q", o.DividendMode))
	}
	switch o.CacheMode {
	case CacheYear, CacheDay, CacheOff:
	default:
		errs = append(errs, fmt.Errorf("unknown cache mode %q", o.CacheMode))
	}
	if o.ProfitLookbackYears < 0 {
		errs = append(errs, fmt.Errorf("profit lookback must not be negative, got %d", o.ProfitLookbackYears))
	}

	return errors.Join(errs...)
}
