package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/graham/internal/definition"
	"github.com/aristath/graham/internal/domain"
	"github.com/aristath/graham/internal/modules/marketdata"
	"github.com/aristath/graham/internal/modules/results"
	"github.com/aristath/graham/internal/modules/runs"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBodyBytes     = 1 << 20
)

// PairResponse is a stored pair with its comparison
type PairResponse struct {
	PairID     string              `json:"pair_id"`
	Runs       []runs.Run          `json:"runs"`
	Comparison *results.Comparison `json:"comparison,omitempty"`
}

// RunResponse is one stored run with its starting positions
type RunResponse struct {
	runs.Run
	InitialPositions []domain.Position `json:"initial_positions"`
}

// handleCreateBacktest runs a posted definition
// POST /api/backtests[?async=true]
func (s *Server) handleCreateBacktest(w http.ResponseWriter, r *http.Request) {
	def, err := definition.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), s.defaults)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		go func() {
			if _, err := s.backtests.RunPair(s.baseCtx, def); err != nil {
				s.log.Error().Err(err).Str("name", def.Name).Msg("Asynchronous backtest failed")
			}
		}()
		s.writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "accepted",
			"name":   def.Name,
		})
		return
	}

	pair, err := s.backtests.RunPair(r.Context(), def)
	if err != nil {
		s.writeError(w, backtestErrorStatus(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, pair)
}

func backtestErrorStatus(err error) int {
	switch {
	case errors.Is(err, definition.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, marketdata.ErrNoPrices), errors.Is(err, results.ErrNoResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleListBacktests lists stored runs, newest first
// GET /api/backtests?limit=N
func (s *Server) handleListBacktests(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	list, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if list == nil {
		list = []runs.Run{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  list,
		"count": len(list),
	})
}

// handleGetPair returns both runs of a pair and their comparison
// GET /api/backtests/pairs/{pairID}
func (s *Server) handleGetPair(w http.ResponseWriter, r *http.Request) {
	pairID := chi.URLParam(r, "pairID")

	list, err := s.runs.ListPair(r.Context(), pairID)
	if err != nil {
		s.log.Error().Err(err).Str("pair_id", pairID).Msg("Failed to load pair")
		s.writeError(w, http.StatusInternalServerError, "failed to load pair")
		return
	}
	if len(list) == 0 {
		s.writeError(w, http.StatusNotFound, runs.ErrNotFound.Error())
		return
	}

	response := PairResponse{PairID: pairID, Runs: list}
	var strategy, baseline *runs.Run
	for i := range list {
		switch list[i].Mode {
		case "strategy":
			strategy = &list[i]
		case "buy_and_hold":
			baseline = &list[i]
		}
	}
	if strategy != nil && baseline != nil {
		c := results.Compare(strategy.Summary, baseline.Summary)
		response.Comparison = &c
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetBacktest returns one run
// GET /api/backtests/{id}
func (s *Server) handleGetBacktest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := s.runs.Get(r.Context(), id)
	if err != nil {
		s.writeRunError(w, id, err)
		return
	}
	positions, err := s.runs.InitialPositions(r.Context(), id)
	if err != nil {
		s.writeRunError(w, id, err)
		return
	}

	s.writeJSON(w, http.StatusOK, RunResponse{Run: *run, InitialPositions: positions})
}

// handleDeleteBacktest removes one run
// DELETE /api/backtests/{id}
func (s *Server) handleDeleteBacktest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.runs.Delete(r.Context(), id); err != nil {
		s.writeRunError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GET /api/backtests/{id}/equity
func (s *Server) handleGetEquity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	curve, err := s.runs.EquityCurve(r.Context(), id)
	if err != nil {
		s.writeRunError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "equity_curve": curve})
}

// GET /api/backtests/{id}/trades
func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trades, err := s.runs.Trades(r.Context(), id)
	if err != nil {
		s.writeRunError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "trades": trades})
}

// GET /api/backtests/{id}/dividends
func (s *Server) handleGetDividends(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dividends, err := s.runs.Dividends(r.Context(), id)
	if err != nil {
		s.writeRunError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"run_id": id, "dividends": dividends})
}

func (s *Server) writeRunError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, runs.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, runs.ErrNotFound.Error())
		return
	}
	s.log.Error().Err(err).Str("run_id", id).Msg("Failed to read run")
	s.writeError(w, http.StatusInternalServerError, "failed to read run")
}
