package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/aristath/graham/internal/domain"
	testingpkg "github.com/aristath/graham/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(start, end string) Options {
	opts := DefaultOptions()
	opts.StartDate = domain.MustDate(start)
	opts.EndDate = domain.MustDate(end)
	return opts
}

func newEngine(t *testing.T, opts Options, portfolio domain.Portfolio, data *domain.MarketData) *Engine {
	t.Helper()
	engine, err := New(opts, portfolio, data, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func runEngine(t *testing.T, opts Options, portfolio domain.Portfolio, data *domain.MarketData) *Engine {
	t.Helper()
	engine := newEngine(t, opts, portfolio, data)
	require.NoError(t, engine.Run(context.Background()))
	return engine
}

func tradesOf(trades []domain.Trade, action domain.TradeAction) []domain.Trade {
	var out []domain.Trade
	for _, tr := range trades {
		if tr.Action == action {
			out = append(out, tr)
		}
	}
	return out
}

func TestOptionsValidate(t *testing.T) {
	valid := testOptions("2020-01-01", "2020-12-31")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero capital", func(o *Options) { o.InitialCapital = 0 }},
		{"margin too high", func(o *Options) { o.SafetyMargin = 1 }},
		{"margin zero", func(o *Options) { o.SafetyMargin = 0 }},
		{"negative multiplier", func(o *Options) { o.MinCashMultiplier = -1 }},
		{"end before start", func(o *Options) { o.EndDate = domain.MustDate("2019-01-01") }},
		{"missing dates", func(o *Options) { o.StartDate = time.Time{} }},
		{"unknown dividend mode", func(o *Options) { o.DividendMode = "drip" }},
		{"unknown cache mode", func(o *Options) { o.CacheMode = "week" }},
		{"negative lookback", func(o *Options) { o.ProfitLookbackYears = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestNew_Errors(t *testing.T) {
	opts := testOptions("2020-01-01", "2020-12-31")
	bad := opts
	bad.InitialCapital = -5

	tests := []struct {
		name      string
		opts      Options
		portfolio domain.Portfolio
		errMsg    string
	}{
		{"empty portfolio", opts, nil, "portfolio is empty"},
		{"invalid options", bad, domain.Portfolio{{Ticker: "A", Weight: 1}}, "invalid backtest options"},
		{"duplicate ticker", opts, domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "B", Weight: 1}, {Ticker: "A", Weight: 2}}, "duplicate ticker A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := New(tt.opts, tt.portfolio, domain.NewMarketData(), zerolog.Nop())
			assert.Nil(t, engine)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestEngine_InitialAllocation(t *testing.T) {
	portfolio := domain.Portfolio{
		{Ticker: "A", Weight: 1},
		{Ticker: "B", Weight: 1},
		{Ticker: "NOPX", Weight: 2},
	}
	data := testingpkg.ValueMarket("A", 10, testingpkg.PricePath("2020-01-06", 40, 40))
	testingpkg.AddValuedTicker(data, "B", 5, testingpkg.PricePath("2020-01-06", 20, 20))

	engine := newEngine(t, testOptions("2020-01-01", "2020-12-31").BuyAndHold(), portfolio, data)

	initial := engine.InitialPositions()
	require.Len(t, initial, 2)
	assert.Equal(t, "A", initial[0].Ticker)
	assert.Equal(t, 62, initial[0].Shares) // 2500 / 40
	assert.Equal(t, "B", initial[1].Ticker)
	assert.Equal(t, 125, initial[1].Shares) // 2500 / 20
	assert.InDelta(t, 5020.0, engine.Cash(), 1e-9)
	assert.Empty(t, engine.Trades(), "initial allocation is not a trade")
	assert.Equal(t, 2, engine.Days())
}

func TestEngine_BuyAtBoundaryGatedByMinimumCash(t *testing.T) {
	prices := testingpkg.WithDividends(testingpkg.FlatPrices("2020-01-01", "2020-12-31", 42.5), 10, 1.0)
	data := testingpkg.ValueMarket("A", 10, prices)
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "NOPX", Weight: 1}}

	engine := runEngine(t, testOptions("2020-01-01", "2020-12-31"), portfolio, data)

	curve := engine.EquityCurve()
	require.Len(t, curve, len(prices))

	dividendOn := make(map[time.Time]float64)
	for _, d := range engine.Dividends() {
		dividendOn[d.Date] += d.TotalAmount
	}
	buysOn := make(map[time.Time]domain.Trade)
	for _, tr := range engine.Trades() {
		require.Equal(t, domain.ActionBuy, tr.Action, "price never reaches the sell band")
		require.Equal(t, "A", tr.Ticker)
		buysOn[tr.Date] = tr
	}
	require.GreaterOrEqual(t, len(buysOn), 2)

	threshold := 42.5 * DefaultMinCashMultiplier
	prevCash := DefaultInitialCapital - engine.InitialPositions()[0].Cost
	for _, snap := range curve {
		available := prevCash + dividendOn[snap.Date]
		if buy, ok := buysOn[snap.Date]; ok {
			assert.Greater(t, available, threshold)
			assert.LessOrEqual(t, buy.Amount, available+1e-6)
			assert.Less(t, snap.Cash, 42.5, "a single candidate spends all but a share's worth")
			assert.InDelta(t, 2.0, buy.WPP, 1e-9)
			assert.InDelta(t, 2.0, buy.Discount, 1e-9)
			assert.InDelta(t, 85.0, buy.IntrinsicValue, 1e-9)
		} else {
			assert.LessOrEqual(t, available, threshold+1e-6, "no buy on %s", snap.Date)
		}
		prevCash = snap.Cash
	}

	_, held := engine.Positions()["NOPX"]
	assert.False(t, held)
}

func TestEngine_NoIntrinsicValueNoTrades(t *testing.T) {
	data := domain.NewMarketData()
	data.Prices["A"] = testingpkg.FlatPrices("2020-01-01", "2020-06-30", 30)
	data.Profits["A"] = []domain.ProfitPoint{{Year: 2019, NetIncome: 1e9}}
	data.EPS["A"] = testingpkg.ConstantEPS(2015, 2030, 10)
	data.Rates = testingpkg.MonthlyRates("2005-01-01", "2030-12-31", 10)

	engine := runEngine(t, testOptions("2020-01-01", "2020-06-30"), domain.Portfolio{{Ticker: "A", Weight: 1}}, data)

	assert.Empty(t, engine.Trades())
	for _, snap := range engine.EquityCurve() {
		assert.InDelta(t, 9990.0, snap.MarketValue, 1e-9)
		assert.InDelta(t, 10000.0, snap.TotalEquity, 1e-9)
	}
	assert.Equal(t, map[string]int{"A": 333}, engine.Positions())
}

func TestEngine_DividendReinvest(t *testing.T) {
	// A absorbs half the capital with 2000 left over; B pays 10 per share every tenth day
	data := testingpkg.ValueMarket("A", 10, testingpkg.FlatPrices("2020-01-01", "2020-03-31", 3000))
	testingpkg.AddValuedTicker(data, "B", 10,
		testingpkg.WithDividends(testingpkg.FlatPrices("2020-01-01", "2020-03-31", 100), 10, 10))
	opts := testOptions("2020-01-01", "2020-03-31").BuyAndHold()
	opts.DividendMode = DividendReinvest

	engine := runEngine(t, opts, domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "B", Weight: 1}}, data)

	dividends := engine.Dividends()
	require.Len(t, dividends, 6)

	tests := []struct {
		held       int
		amount     float64
		reinvested int
		cashAfter  float64
	}{
		{50, 500, 5, 1500},
		{55, 550, 5, 1000},
		{60, 600, 6, 400},
		{66, 660, 0, 400}, // cost 600 exceeds cash
		{66, 660, 0, 400},
		{66, 660, 0, 400},
	}

	curve := engine.EquityCurve()
	for i, tt := range tests {
		day := 10*i + 9
		assert.Equal(t, tt.held, dividends[i].SharesHeld, "dividend %d", i)
		assert.InDelta(t, tt.amount, dividends[i].TotalAmount, 1e-9, "dividend %d", i)
		assert.Equal(t, tt.reinvested, dividends[i].ReinvestedShares, "dividend %d", i)
		assert.InDelta(t, tt.cashAfter, curve[day].Cash, 1e-9, "cash after dividend %d", i)

		// Cash falls by exactly shares x price; the dividend itself is never credited
		assert.InDelta(t, curve[day-1].Cash-float64(tt.reinvested)*100, curve[day].Cash, 1e-9, "dividend %d", i)
	}

	reinvests := tradesOf(engine.Trades(), domain.ActionDividendReinvest)
	require.Len(t, reinvests, 3)
	assert.Equal(t, 5, reinvests[0].Shares)
	assert.InDelta(t, 500.0, reinvests[0].Amount, 1e-9)
	assert.InDelta(t, 100.0, reinvests[0].Price, 1e-9)
	assert.Equal(t, 6, reinvests[2].Shares)
	assert.Empty(t, tradesOf(engine.Trades(), domain.ActionBuy), "buy and hold never buys")
	assert.Equal(t, map[string]int{"A": 1, "B": 66}, engine.Positions())
}

func TestEngine_DividendCash(t *testing.T) {
	prices := testingpkg.WithDividends(testingpkg.FlatPrices("2020-01-01", "2020-01-31", 60), 5, 0.5)
	data := testingpkg.ValueMarket("A", 10, prices)

	engine := runEngine(t, testOptions("2020-01-01", "2020-01-31").BuyAndHold(), domain.Portfolio{{Ticker: "A", Weight: 1}}, data)

	// 166 shares, 40 cash left; 83 per dividend
	curve := engine.EquityCurve()
	assert.InDelta(t, 40.0, curve[3].Cash, 1e-9)
	assert.InDelta(t, 123.0, curve[4].Cash, 1e-9)
	assert.InDelta(t, 206.0, curve[9].Cash, 1e-9)
	for _, d := range engine.Dividends() {
		assert.Equal(t, 166, d.SharesHeld)
		assert.Zero(t, d.ReinvestedShares)
	}
	assert.Empty(t, engine.Trades())
}

func TestEngine_BuyAndHoldTracksCloses(t *testing.T) {
	closesA := []float64{10, 11, 12, 9, 13}
	closesB := []float64{20, 19, 25, 30, 18}
	data := testingpkg.ValueMarket("A", 10, testingpkg.PricePath("2020-03-02", closesA...))
	testingpkg.AddValuedTicker(data, "B", 10, testingpkg.PricePath("2020-03-02", closesB...))
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "B", Weight: 1}}

	engine := runEngine(t, testOptions("2020-01-01", "2020-12-31").BuyAndHold(), portfolio, data)

	assert.Empty(t, engine.Trades())
	curve := engine.EquityCurve()
	require.Len(t, curve, len(closesA))
	for i, snap := range curve {
		want := 500*closesA[i] + 250*closesB[i]
		assert.InDelta(t, want, snap.MarketValue, 1e-9)
		assert.InDelta(t, 0.0, snap.Cash, 1e-9)
		assert.InDelta(t, want, snap.TotalEquity, 1e-9)
	}

	// A strategy run on the same data starts from the same positions.
	strategy := newEngine(t, testOptions("2020-01-01", "2020-12-31"), portfolio, data)
	assert.Equal(t, engine.InitialPositions(), strategy.InitialPositions())
}

func TestEngine_MissingPriceContributesNothing(t *testing.T) {
	data := testingpkg.ValueMarket("A", 10, testingpkg.PricePath("2020-03-02", 50, 50, 50))
	pricesB := testingpkg.PricePath("2020-03-02", 100, 100, 100)
	testingpkg.AddValuedTicker(data, "B", 10, []domain.PricePoint{pricesB[0], pricesB[2]})
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "B", Weight: 1}}

	engine := runEngine(t, testOptions("2020-01-01", "2020-12-31").BuyAndHold(), portfolio, data)

	curve := engine.EquityCurve()
	require.Len(t, curve, 3)
	assert.InDelta(t, 10000.0, curve[0].TotalEquity, 1e-9)
	assert.InDelta(t, 5000.0, curve[1].MarketValue, 1e-9)
	assert.InDelta(t, 10000.0, curve[2].TotalEquity, 1e-9)
}

func TestEngine_StagedSellLadder(t *testing.T) {
	closes := []float64{80, 130, 130, 145, 200, 200, 200, 200, 40, 130}
	data := testingpkg.ValueMarket("A", 10, testingpkg.PricePath("2020-03-02", closes...))

	engine := runEngine(t, testOptions("2020-01-01", "2020-12-31"), domain.Portfolio{{Ticker: "A", Weight: 1}}, data)

	require.Equal(t, 125, engine.InitialPositions()[0].Shares)

	type step struct {
		action domain.TradeAction
		level  int
		shares int
		price  float64
	}
	want := []step{
		{domain.ActionSell, 1, 62, 130},
		{domain.ActionSell, 2, 31, 145},
		{domain.ActionSell, 3, 16, 200},
		{domain.ActionSell, 4, 8, 200},
		{domain.ActionSell, 5, 8, 200},
		{domain.ActionBuy, 0, 473, 40},
		{domain.ActionSell, 1, 236, 130},
	}

	trades := engine.Trades()
	require.Len(t, trades, len(want))
	for i, w := range want {
		assert.Equal(t, w.action, trades[i].Action, "trade %d", i)
		assert.Equal(t, w.level, trades[i].Level, "trade %d", i)
		assert.Equal(t, w.shares, trades[i].Shares, "trade %d", i)
		assert.InDelta(t, w.price, trades[i].Price, 1e-9, "trade %d", i)
	}
	assert.InDelta(t, 0.5, trades[0].ProfitMargin, 1e-9)
	assert.InDelta(t, 1.2, trades[4].ProfitMargin, 1e-9)

	curve := engine.EquityCurve()
	assert.InDelta(t, 18955.0, curve[6].Cash, 1e-9)
	assert.InDelta(t, 0.0, curve[6].MarketValue, 1e-9)
	assert.InDelta(t, 35.0, curve[8].Cash, 1e-9)
	assert.Equal(t, map[string]int{"A": 237}, engine.Positions())
}

func TestEngine_ProportionalBuys(t *testing.T) {
	portfolio := domain.Portfolio{
		{Ticker: "A", Weight: 1},
		{Ticker: "B", Weight: 3},
		{Ticker: "C", Weight: 2},
	}
	data := testingpkg.ValueMarket("A", 10, testingpkg.PricePath("2020-01-06", 40, 40))
	testingpkg.AddValuedTicker(data, "B", 5, testingpkg.PricePath("2020-01-06", 20, 20))

	engine := newEngine(t, testOptions("2020-01-01", "2020-12-31"), portfolio, data)
	assert.InDelta(t, 3360.0, engine.Cash(), 1e-9)

	engine.Step()
	trades := engine.Trades()
	require.Len(t, trades, 2)

	assert.Equal(t, "A", trades[0].Ticker)
	assert.Equal(t, 21, trades[0].Shares)
	assert.InDelta(t, 2.13, trades[0].WPP, 1e-9)
	assert.Equal(t, "B", trades[1].Ticker)
	assert.Equal(t, 125, trades[1].Shares)
	assert.InDelta(t, 6.38, trades[1].WPP, 1e-9)
	assert.InDelta(t, 3360.0, trades[0].Allocation+trades[1].Allocation, 0.011)
	assert.InDelta(t, 20.0, engine.Cash(), 1e-9)

	// 20 left is below the minimum for either instrument
	engine.Step()
	assert.Len(t, engine.Trades(), 2)
	assert.True(t, engine.Done())
}

// oscillatingMarket crosses both bands repeatedly under a varying rate series.
func oscillatingMarket() *domain.MarketData {
	days := testingpkg.BusinessDays("2019-01-01", "2020-12-31")
	pricesA := make([]domain.PricePoint, len(days))
	pricesB := make([]domain.PricePoint, len(days))
	for i, d := range days {
		pricesA[i] = domain.PricePoint{Date: d, Close: math.Round((100+75*math.Sin(float64(i)/20))*100) / 100}
		pricesB[i] = domain.PricePoint{Date: d, Close: math.Round((30+22*math.Cos(float64(i)/13))*100) / 100}
	}
	testingpkg.WithDividends(pricesA, 63, 0.8)

	data := domain.NewMarketData()
	data.Prices["A"] = pricesA
	data.Profits["A"] = testingpkg.GrowingProfits(2008, 2020, 1e9, 0.05)
	data.EPS["A"] = testingpkg.ConstantEPS(2015, 2021, 5)
	testingpkg.AddValuedTicker(data, "B", 3, pricesB)
	data.Rates = testingpkg.MonthlyRates("2005-01-01", "2021-12-31", 10, 12, 9, 11, 14)
	return data
}

func TestEngine_CacheModesAgree(t *testing.T) {
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 2}, {Ticker: "B", Weight: 1}}

	var reference *Engine
	for _, mode := range []CacheMode{CacheOff, CacheDay, CacheYear} {
		t.Run(string(mode), func(t *testing.T) {
			opts := testOptions("2019-01-01", "2020-12-31")
			opts.CacheMode = mode
			engine := runEngine(t, opts, portfolio, oscillatingMarket())

			stats := engine.CacheStats()
			assert.Equal(t, mode, stats.Mode)
			switch mode {
			case CacheOff:
				assert.Zero(t, stats.Entries)
				assert.Zero(t, stats.Hits)
			case CacheDay:
				assert.Equal(t, stats.Misses, stats.Entries)
			case CacheYear:
				assert.Positive(t, stats.Hits)
				assert.Less(t, stats.Entries, stats.Misses+stats.Hits)
			}

			if reference == nil {
				reference = engine
				require.NotEmpty(t, engine.Trades())
				assert.NotEmpty(t, tradesOf(engine.Trades(), domain.ActionSell))
				assert.NotEmpty(t, tradesOf(engine.Trades(), domain.ActionBuy))
				return
			}
			assert.Equal(t, reference.Trades(), engine.Trades())
			assert.Equal(t, reference.EquityCurve(), engine.EquityCurve())
		})
	}
}

func TestEngine_CashAndSharesStayNonNegative(t *testing.T) {
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 1}, {Ticker: "B", Weight: 1}}
	for _, mode := range []DividendMode{DividendCash, DividendReinvest} {
		t.Run(string(mode), func(t *testing.T) {
			opts := testOptions("2019-01-01", "2020-12-31")
			opts.DividendMode = mode
			engine := newEngine(t, opts, portfolio, oscillatingMarket())

			for !engine.Done() {
				engine.Step()
				require.GreaterOrEqual(t, engine.Cash(), 0.0)
				for ticker, shares := range engine.Positions() {
					require.Positive(t, shares, ticker)
				}
			}
			assert.Len(t, engine.EquityCurve(), engine.Days())

			for i := 1; i < len(engine.EquityCurve()); i++ {
				assert.True(t, engine.EquityCurve()[i-1].Date.Before(engine.EquityCurve()[i].Date))
			}
		})
	}
}

func TestEngine_RunCancelled(t *testing.T) {
	data := testingpkg.ValueMarket("A", 10, testingpkg.FlatPrices("2020-01-01", "2020-12-31", 60))
	portfolio := domain.Portfolio{{Ticker: "A", Weight: 1}}

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		engine := newEngine(t, testOptions("2020-01-01", "2020-12-31"), portfolio, data)
		err := engine.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, engine.EquityCurve())
	})

	t.Run("mid run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		engine := newEngine(t, testOptions("2020-01-01", "2020-12-31"), portfolio, data)
		var calls int
		engine.SetProgress(func(dayIndex, totalDays int, _ domain.EquitySnapshot) {
			calls++
			assert.Equal(t, engine.Days(), totalDays)
			if dayIndex == 3 {
				cancel()
			}
		})

		err := engine.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 3, calls)
		assert.Len(t, engine.EquityCurve(), 3)
		assert.False(t, engine.Done())
	})
}
