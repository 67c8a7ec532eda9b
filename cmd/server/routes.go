package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/structa/switchboard/internal/config"
	"github.com/structa/switchboard/internal/engine"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/pkg/lifecycle"
	"github.com/structa/switchboard/pkg/middleware"
)

type queryRequest struct {
	Text    string     `json:"text"`
	Filters qa.Filters `json:"filters"`
	// Timeout is a duration string ("5s"); empty uses the engine default.
	Timeout       string `json:"timeout,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func buildRouter(eng *engine.Engine, lc *lifecycle.Coordinator, cfg *config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/query", handleQuery(eng, logger))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if !lc.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	return middleware.Chain(mux,
		middleware.CorrelationID,
		middleware.Logger(logger.With("system", "http")),
		middleware.CORS(&cfg.Server.CORS),
	)
}

func handleQuery(eng *engine.Engine, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
			return
		}

		var deadline time.Time
		if req.Timeout != "" {
			timeout, err := time.ParseDuration(req.Timeout)
			if err != nil || timeout <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid timeout %q", req.Timeout))
				return
			}
			deadline = time.Now().Add(timeout)
		}

		correlationID := req.CorrelationID
		if correlationID == "" {
			correlationID = middleware.RequestCorrelationID(r)
		}

		q, err := qa.NewQuery(req.Text, req.Filters, correlationID, deadline)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		answer, err := eng.Execute(r.Context(), q)
		if err != nil {
			// Execute only errors on contract violations, which NewQuery
			// already screened; anything surfacing here is a server bug.
			if errors.Is(err, qa.ErrEmptyQuery) || errors.Is(err, qa.ErrQueryTooLong) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			logger.Error("query execution failed",
				"correlation_id", q.CorrelationID,
				"error", err,
			)
			writeError(w, http.StatusInternalServerError, errors.New("internal error"))
			return
		}

		writeJSON(w, http.StatusOK, answer)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
