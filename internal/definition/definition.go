// Package definition reads backtest definitions: a portfolio plus the run
// parameters, stored as TOML files or posted as JSON.
package definition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/backtest"
	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// ErrInvalid wraps every decoding and validation failure.
var ErrInvalid = errors.New("invalid backtest definition")

// Defaults fill the parameters a definition leaves out.
type Defaults struct {
	SafetyMargin      float64
	InitialCapital    float64
	MinCashMultiplier float64
	DividendMode      string
	CacheMode         string
	RateSeries        string
}

// StandardDefaults returns the built-in run parameters.
func StandardDefaults() Defaults {
	return Defaults{
		SafetyMargin:      backtest.DefaultSafetyMargin,
		InitialCapital:    backtest.DefaultInitialCapital,
		MinCashMultiplier: backtest.DefaultMinCashMultiplier,
		DividendMode:      string(backtest.DividendCash),
		CacheMode:         string(backtest.CacheYear),
		RateSeries:        "4189",
	}
}

// Definition describes one backtest pair (strategy and buy-and-hold).
type Definition struct {
	Name                string           `toml:"name" json:"name" validate:"required,max=128"`
	StartDate           string           `toml:"start_date" json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate             string           `toml:"end_date" json:"end_date" validate:"required,datetime=2006-01-02"`
	InitialCapital      float64          `toml:"initial_capital" json:"initial_capital" validate:"gt=0"`
	SafetyMargin        float64          `toml:"safety_margin" json:"safety_margin" validate:"gt=0,lt=1"`
	MinCashMultiplier   float64          `toml:"min_cash_multiplier" json:"min_cash_multiplier" validate:"gte=0"`
	DividendMode        string           `toml:"dividend_mode" json:"dividend_mode" validate:"oneof=cash reinvest"`
	CacheMode           string           `toml:"cache_mode" json:"cache_mode" validate:"oneof=year day off"`
	ProfitLookbackYears int              `toml:"profit_lookback_years" json:"profit_lookback_years" validate:"gte=0"`
	RateSeries          string           `toml:"rate_series" json:"rate_series" validate:"required"`
	Export              bool             `toml:"export" json:"export"`
	Portfolio           []PortfolioEntry `toml:"portfolio" json:"portfolio" validate:"required,min=1,unique=Ticker,dive"`
}

// PortfolioEntry is one [[portfolio]] table.
type PortfolioEntry struct {
	Ticker string `toml:"ticker" json:"ticker" validate:"required,max=32"`
	Weight int    `toml:"weight" json:"weight" validate:"gt=0"`
}

// New returns an empty definition carrying the defaults.
func New(d Defaults) *Definition {
	return &Definition{
		InitialCapital:    d.InitialCapital,
		SafetyMargin:      d.SafetyMargin,
		MinCashMultiplier: d.MinCashMultiplier,
		DividendMode:      d.DividendMode,
		CacheMode:         d.CacheMode,
		RateSeries:        d.RateSeries,
	}
}

// Parse decodes a TOML definition over the defaults and validates it.
// Unknown keys are rejected.
func Parse(data []byte, d Defaults) (*Definition, error) {
	def := New(d)
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// LoadFile reads and parses a TOML definition file.
func LoadFile(path string, d Defaults) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}
	def, err := Parse(data, d)
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", path, err)
	}
	return def, nil
}

// DecodeJSON decodes a JSON definition over the defaults and validates it.
// Unknown fields are rejected.
func DecodeJSON(r io.Reader, d Defaults) (*Definition, error) {
	def := New(d)
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(def); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report the file's key names rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Validate normalises tickers and checks every field, including the date order.
func (d *Definition) Validate() error {
	for i := range d.Portfolio {
		d.Portfolio[i].Ticker = strings.ToUpper(strings.TrimSpace(d.Portfolio[i].Ticker))
	}
	d.DividendMode = strings.ToLower(strings.TrimSpace(d.DividendMode))
	d.CacheMode = strings.ToLower(strings.TrimSpace(d.CacheMode))

	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}

	opts, err := d.Options()
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Definition.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// Options converts the run parameters for the strategy engine.
func (d *Definition) Options() (backtest.Options, error) {
	start, err := domain.ParseDate(d.StartDate)
	if err != nil {
		return backtest.Options{}, fmt.Errorf("%w: start_date: %v", ErrInvalid, err)
	}
	end, err := domain.ParseDate(d.EndDate)
	if err != nil {
		return backtest.Options{}, fmt.Errorf("%w: end_date: %v", ErrInvalid, err)
	}

	return backtest.Options{
		SafetyMargin:        d.SafetyMargin,
		InitialCapital:      d.InitialCapital,
		StartDate:           start,
		EndDate:             end,
		MinCashMultiplier:   d.MinCashMultiplier,
		UseStrategy:         true,
		DividendMode:        backtest.DividendMode(d.DividendMode),
		CacheMode:           backtest.CacheMode(d.CacheMode),
		ProfitLookbackYears: d.ProfitLookbackYears,
	}, nil
}

// PortfolioSpec returns the basket in file order.
func (d *Definition) PortfolioSpec() domain.Portfolio {
	portfolio := make(domain.Portfolio, len(d.Portfolio))
	for i, e := range d.Portfolio {
		portfolio[i] = domain.PortfolioEntry{Ticker: e.Ticker, Weight: e.Weight}
	}
	return portfolio
}

// Encode renders the definition as TOML.
func (d *Definition) Encode() ([]byte, error) {
	data, err := toml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode definition: %w", err)
	}
	return data, nil
}
