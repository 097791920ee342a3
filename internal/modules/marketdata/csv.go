package marketdata

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/graham/internal/domain"
)

// dateLayouts accepted in CSV date columns. yfinance exports carry a time and
// offset after the date; only the first ten characters are parsed.
var dateLayouts = []string{domain.DateLayout, "02/01/2006"}

func parseCSVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) > 10 && s[4] == '-' {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func parseCSVFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return strconv.ParseFloat(s, 64)
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(bufio.NewReaderSize(r, 1<<16))
	reader.ReuseRecord = true
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	return reader
}

// header maps lower-cased column names to their index
func header(reader *csv.Reader) (map[string]int, error) {
	record, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty csv")
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	columns := make(map[string]int, len(record))
	for i, name := range record {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[name] = i
	}
	return columns, nil
}

func column(columns map[string]int, names ...string) (int, bool) {
	for _, n := range names {
		if i, ok := columns[n]; ok {
			return i, true
		}
	}
	return 0, false
}

// ReadPriceCSV parses a daily price history. The header must name a date and
// a close column; a dividends column is optional. Other columns (Open, High,
// Volume, Stock Splits...) are ignored. Rows with an empty close are skipped.
func ReadPriceCSV(r io.Reader) ([]domain.PricePoint, error) {
	reader := newCSVReader(r)
	columns, err := header(reader)
	if err != nil {
		return nil, err
	}

	dateCol, ok := column(columns, "date", "datetime")
	if !ok {
		return nil, fmt.Errorf("price csv has no date column")
	}
	closeCol, ok := column(columns, "close", "adj close")
	if !ok {
		return nil, fmt.Errorf("price csv has no close column")
	}
	divCol, hasDiv := column(columns, "dividends", "dividend")

	var prices []domain.PricePoint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if closeCol >= len(record) || dateCol >= len(record) || strings.TrimSpace(record[closeCol]) == "" {
			continue
		}

		date, err := parseCSVDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		closePrice, err := parseCSVFloat(record[closeCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid close: %w", line, err)
		}

		p := domain.PricePoint{Date: date, Close: closePrice}
		if hasDiv && divCol < len(record) {
			if p.Dividend, err = parseCSVFloat(record[divCol]); err != nil {
				return nil, fmt.Errorf("line %d: invalid dividend: %w", line, err)
			}
		}
		prices = append(prices, p)
	}

	return prices, nil
}

// ReadAnnualCSV parses a "year,value" file (net income or EPS).
func ReadAnnualCSV(r io.Reader) (map[int]float64, error) {
	reader := newCSVReader(r)
	columns, err := header(reader)
	if err != nil {
		return nil, err
	}

	yearCol, ok := column(columns, "year", "ano")
	if !ok {
		return nil, fmt.Errorf("annual csv has no year column")
	}
	valueCol, ok := column(columns, "value", "valor", "net_income", "eps")
	if !ok {
		return nil, fmt.Errorf("annual csv has no value column")
	}

	values := make(map[int]float64)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if yearCol >= len(record) || valueCol >= len(record) {
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(record[yearCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid year: %w", line, err)
		}
		value, err := parseCSVFloat(record[valueCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value: %w", line, err)
		}
		values[year] = value
	}

	return values, nil
}

// ProfitsFromAnnual orders annual values into a net income history.
func ProfitsFromAnnual(values map[int]float64) []domain.ProfitPoint {
	points := make([]domain.ProfitPoint, 0, len(values))
	for year, v := range values {
		points = append(points, domain.ProfitPoint{Year: year, NetIncome: v})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Year < points[j].Year })
	return points
}

// ReadRatesCSV parses a "date,value" rate series. Dates may be YYYY-MM-DD or
// DD/MM/YYYY; values are percentages.
func ReadRatesCSV(r io.Reader) ([]domain.RatePoint, error) {
	reader := newCSVReader(r)
	columns, err := header(reader)
	if err != nil {
		return nil, err
	}

	dateCol, ok := column(columns, "date", "data")
	if !ok {
		return nil, fmt.Errorf("rates csv has no date column")
	}
	valueCol, ok := column(columns, "value", "valor", "rate")
	if !ok {
		return nil, fmt.Errorf("rates csv has no value column")
	}

	var rates []domain.RatePoint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if dateCol >= len(record) || valueCol >= len(record) || strings.TrimSpace(record[valueCol]) == "" {
			continue
		}

		date, err := parseCSVDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		value, err := parseCSVFloat(record[valueCol])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid value: %w", line, err)
		}
		rates = append(rates, domain.RatePoint{Date: date, Value: value})
	}

	return rates, nil
}
