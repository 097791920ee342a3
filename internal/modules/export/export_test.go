package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *results.Result {
	sharpe := 1.25
	return &results.Result{
		Summary: results.Summary{
			InitialCapital: 10000,
			FinalEquity:    10500.5,
			TotalReturnPct: 5.01,
			TotalDividends: 12.5,
			TradeCount:     2,
			StartDate:      domain.MustDate("2020-01-02"),
			EndDate:        domain.MustDate("2020-01-03"),
			Days:           2,
			TradesByAction: map[domain.TradeAction]int{domain.ActionBuy: 1, domain.ActionSell: 1},
			SharpeRatio:    &sharpe,
		},
		EquityCurve: []domain.EquitySnapshot{
			{Date: domain.MustDate("2020-01-02"), Cash: 100, MarketValue: 9900, TotalEquity: 10000},
			{Date: domain.MustDate("2020-01-03"), Cash: 600.5, MarketValue: 9900, TotalEquity: 10500.5},
		},
		Trades: []domain.Trade{
			{Date: domain.MustDate("2020-01-02"), Ticker: "A", Action: domain.ActionBuy, Shares: 2, Price: 40, Amount: 80, WPP: 2.13},
			{Date: domain.MustDate("2020-01-03"), Ticker: "A", Action: domain.ActionSell, Shares: 1, Price: 130, Amount: 130, Level: 1, ProfitMargin: 0.5},
		},
		Dividends: []domain.DividendRecord{
			{Date: domain.MustDate("2020-01-03"), Ticker: "A", SharesHeld: 25, DividendPerShare: 0.5, TotalAmount: 12.5},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriteRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run-1")
	files, err := WriteRun(dir, sampleResult())
	require.NoError(t, err)
	require.Len(t, files, 4)

	equity := readCSV(t, filepath.Join(dir, EquityFile))
	assert.Equal(t, []string{"date", "cash", "market_value", "total_equity"}, equity[0])
	assert.Equal(t, []string{"2020-01-03", "600.5", "9900", "10500.5"}, equity[2])

	trades := readCSV(t, filepath.Join(dir, TradesFile))
	require.Len(t, trades, 3)
	assert.Equal(t, "BUY", trades[1][2])
	assert.Equal(t, "2.13", trades[1][7])
	assert.Equal(t, "1", trades[2][10])

	dividends := readCSV(t, filepath.Join(dir, DividendsFile))
	assert.Equal(t, []string{"2020-01-03", "A", "25", "0.5", "12.5", "0"}, dividends[1])

	summary := readCSV(t, filepath.Join(dir, SummaryFile))
	metrics := make(map[string]string)
	for _, row := range summary[1:] {
		metrics[row[0]] = row[1]
	}
	assert.Equal(t, "10500.5", metrics["final_equity"])
	assert.Equal(t, "1", metrics["trades_SELL"])
	assert.Equal(t, "0", metrics["trades_DIVIDEND_REINVEST"])
	assert.Equal(t, "1.25", metrics["sharpe_ratio"])
	_, hasCAGR := metrics["cagr"]
	assert.False(t, hasCAGR)
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	if m.fail {
		return assert.AnError
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func TestExporter_Export(t *testing.T) {
	base := t.TempDir()

	t.Run("local only", func(t *testing.T) {
		report, err := NewExporter(base, nil, "", zerolog.Nop()).Export(context.Background(), "local", sampleResult())
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "local"), report.Dir)
		assert.Len(t, report.Files, 4)
		assert.Empty(t, report.Uploaded)
	})

	t.Run("with store", func(t *testing.T) {
		store := &memoryStore{objects: make(map[string][]byte)}
		report, err := NewExporter(base, store, "backtests", zerolog.Nop()).Export(context.Background(), "r1", sampleResult())
		require.NoError(t, err)

		assert.Equal(t, []string{
			"backtests/r1/equity_curve.csv",
			"backtests/r1/trades.csv",
			"backtests/r1/dividends.csv",
			"backtests/r1/summary.csv",
		}, report.Uploaded)

		local, err := os.ReadFile(filepath.Join(base, "r1", EquityFile))
		require.NoError(t, err)
		assert.Equal(t, local, store.objects["backtests/r1/equity_curve.csv"])
	})

	t.Run("upload failure", func(t *testing.T) {
		store := &memoryStore{objects: make(map[string][]byte), fail: true}
		report, err := NewExporter(base, store, "", zerolog.Nop()).Export(context.Background(), "r2", sampleResult())
		assert.Error(t, err)
		require.NotNil(t, report)
		assert.Len(t, report.Files, 4, "local files are kept")
	})
}

func TestS3Client_Upload(t *testing.T) {
	var mu sync.Mutex
	var method, path string
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, data
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewS3Client(context.Background(), S3Config{
		Bucket:    "exports",
		Region:    "auto",
		AccessKey: "key",
		SecretKey: "secret",
		Endpoint:  server.URL,
	}, zerolog.Nop())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEquityCSV(&buf, sampleResult().EquityCurve))
	require.NoError(t, client.Upload(context.Background(), "runs/r1/equity_curve.csv", bytes.NewReader(buf.Bytes()), int64(buf.Len())))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/exports/runs/r1/equity_curve.csv", path)
	assert.True(t, strings.Contains(string(body), "date,cash,market_value,total_equity"))
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), S3Config{}, zerolog.Nop())
	assert.Error(t, err)
}
