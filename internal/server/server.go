// Package server provides the HTTP API for the backtester.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/graham/internal/database"
	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/events"
	"github.com/aristath/graham/internal/metrics"
	"github.com/aristath/graham/internal/modules/runs"
	"github.com/aristath/graham/internal/services"
)

// BacktestRunner runs backtest pairs
type BacktestRunner interface {
	RunPair(ctx context.Context, def *definition.Definition) (*services.PairResult, error)
}

// RunReader reads the run ledger
type RunReader interface {
	Get(ctx context.Context, id string) (*runs.Run, error)
	List(ctx context.Context, limit int) ([]runs.Run, error)
	ListPair(ctx context.Context, pairID string) ([]runs.Run, error)
	InitialPositions(ctx context.Context, id string) ([]domain.Position, error)
	EquityCurve(ctx context.Context, id string) ([]domain.EquitySnapshot, error)
	Trades(ctx context.Context, id string) ([]domain.Trade, error)
	Dividends(ctx context.Context, id string) ([]domain.DividendRecord, error)
	Delete(ctx context.Context, id string) error
}

// JobLister reports scheduled jobs
type JobLister interface {
	Jobs() map[string]time.Time
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	HistoryDB *database.DB
	LedgerDB  *database.DB
	Backtests BacktestRunner
	Runs      RunReader
	EventBus  *events.Bus
	Scheduler JobLister // Optional
	Defaults  definition.Defaults
	DataDir   string
	Port      int
	DevMode   bool
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	historyDB *database.DB
	ledgerDB  *database.DB
	backtests BacktestRunner
	runs      RunReader
	eventBus  *events.Bus
	scheduler JobLister
	defaults  definition.Defaults
	dataDir   string
	port      int
	started   time.Time

	// baseCtx outlives requests; asynchronous backtests run under it
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		historyDB: cfg.HistoryDB,
		ledgerDB:  cfg.LedgerDB,
		backtests: cfg.Backtests,
		runs:      cfg.Runs,
		eventBus:  cfg.EventBus,
		scheduler: cfg.Scheduler,
		defaults:  cfg.Defaults,
		dataDir:   cfg.DataDir,
		port:      cfg.Port,
		started:   time.Now(),
		baseCtx:   ctx,
		cancel:    cancel,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Metrics
	s.router.Use(metrics.Middleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// Streaming endpoints are not wrapped by the timeout
	s.router.Get("/api/events/ws", s.handleEventsWebSocket)
	s.router.Get("/api/events/stream", s.handleEventsStream)

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(110 * time.Second))
		r.Use(middleware.Compress(5))

		r.Route("/api/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
			r.Get("/databases", s.handleDatabaseStats)
			r.Get("/jobs", s.handleJobs)
		})

		r.Route("/api/backtests", func(r chi.Router) {
			r.Post("/", s.handleCreateBacktest)
			r.Get("/", s.handleListBacktests)
			r.Get("/pairs/{pairID}", s.handleGetPair)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetBacktest)
				r.Delete("/", s.handleDeleteBacktest)
				r.Get("/equity", s.handleGetEquity)
				r.Get("/trades", s.handleGetTrades)
				r.Get("/dividends", s.handleGetDividends)
			})
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and cancels background runs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.cancel()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
