package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(BacktestsTotal.WithLabelValues("strategy", "ok"))
	sellsBefore := testutil.ToFloat64(TradesTotal.WithLabelValues("SELL_L1"))
	daysBefore := testutil.ToFloat64(DaysSimulated.WithLabelValues("strategy"))
	hitsBefore := testutil.ToFloat64(ValueCacheLookups.WithLabelValues("hit"))

	RecordRun(RunStats{
		Mode:      "strategy",
		Duration:  120 * time.Millisecond,
		Days:      250,
		Trades:    map[string]int{"SELL_L1": 3, "BUY": 2},
		CacheHits: 40,
	})

	assert.Equal(t, before+1, testutil.ToFloat64(BacktestsTotal.WithLabelValues("strategy", "ok")))
	assert.Equal(t, sellsBefore+3, testutil.ToFloat64(TradesTotal.WithLabelValues("SELL_L1")))
	assert.Equal(t, daysBefore+250, testutil.ToFloat64(DaysSimulated.WithLabelValues("strategy")))
	assert.Equal(t, hitsBefore+40, testutil.ToFloat64(ValueCacheLookups.WithLabelValues("hit")))

	failedBefore := testutil.ToFloat64(BacktestsTotal.WithLabelValues("buy_and_hold", "error"))
	RecordRun(RunStats{Mode: "buy_and_hold", Failed: true})
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(BacktestsTotal.WithLabelValues("buy_and_hold", "error")))
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/backtests/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/backtests/{id}", "404"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/backtests/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/backtests/{id}", "404")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	WebSocketClients.Set(0)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "graham_websocket_clients")
}
