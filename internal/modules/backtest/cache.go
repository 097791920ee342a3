package backtest

import (
	"time"

	"github.com/aristath/graham/internal/modules/valuation"
)

// valueKey identifies the inputs of one intrinsic value computation. In year
// mode, lo/hi bound the rate observations that produce y and z, so two dates
// sharing a key always yield the same value.
type valueKey struct {
	ticker string
	year   int
	date   time.Time
	lo, hi int
}

// CacheStats reports intrinsic value cache usage.
type CacheStats struct {
	Mode    CacheMode `json:"mode"`
	Entries int       `json:"entries"`
	Hits    int       `json:"hits"`
	Misses  int       `json:"misses"`
}

// valueCache is write-once per key; a nil entry records "unavailable".
type valueCache struct {
	mode    CacheMode
	entries map[valueKey]*float64
	hits    int
	misses  int
}

func newValueCache(mode CacheMode) *valueCache {
	return &valueCache{
		mode:    mode,
		entries: make(map[valueKey]*float64),
	}
}

// get returns the cached value for the key derived from (ticker, date), calling
// compute on a miss.
func (c *valueCache) get(ticker string, date time.Time, rateWindow func() (int, int), compute func() *float64) *float64 {
	var key valueKey
	switch c.mode {
	case CacheOff:
		c.misses++
		return compute()
	case CacheDay:
		key = valueKey{ticker: ticker, date: date}
	default:
		lo, hi := rateWindow()
		key = valueKey{ticker: ticker, year: date.Year(), lo: lo, hi: hi}
	}

	if v, ok := c.entries[key]; ok {
		c.hits++
		return v
	}

	c.misses++
	v := compute()
	c.entries[key] = v
	return v
}

func (c *valueCache) stats() CacheStats {
	return CacheStats{
		Mode:    c.mode,
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// intrinsicValue returns the (possibly cached) value of ticker on date.
func (e *Engine) intrinsicValue(ticker string, date time.Time) *float64 {
	return e.cache.get(ticker, date,
		func() (int, int) {
			lo, hi, ok := valuation.RateWindow(date, e.data.Rates)
			if !ok {
				return 0, -1
			}
			return lo, hi
		},
		func() *float64 {
			return valuation.CalculateIntrinsicValue(
				date,
				e.data.Profits[ticker],
				e.data.EPS[ticker],
				e.data.Rates,
				e.opts.ProfitLookbackYears,
			)
		},
	)
}
