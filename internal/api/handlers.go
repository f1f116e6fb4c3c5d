package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/provider"
)

type errorResponse struct {
	Error  string `json:"error"`
	Source string `json:"source,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	source, err := parseSource(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	symbol := r.PathValue("symbol")

	q, err := s.quotes.Quote(ctx, source, symbol)
	if err != nil {
		s.writeError(w, source, err)
		return
	}

	s.touch(source, symbol)
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	source, err := parseSource(r)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	symbol := r.PathValue("symbol")

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "days must be an integer between 1 and 365"})
			return
		}
		days = parsed
	}

	points, err := s.quotes.History(ctx, source, symbol, days)
	if err != nil {
		s.writeError(w, source, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source":  source,
		"symbol":  symbol,
		"days":    days,
		"history": points,
	})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	quotes, err := s.aggregator.Overview(ctx)
	if err != nil {
		s.writeError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quotes": quotes})
}

func (s *Server) handleMovers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var source model.Source
	if raw := r.URL.Query().Get("source"); raw != "" {
		parsed, err := model.ParseSource(raw)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		source = parsed
	}

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "limit must be an integer between 1 and 100"})
			return
		}
		limit = parsed
	}

	movers, err := s.aggregator.TopMovers(ctx, source, limit)
	if err != nil {
		s.writeError(w, source, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movers": movers})
}

// handleRefresh schedules an immediate refresh cycle and returns 202: the
// work happens in the background, the acknowledgement only means scheduled.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// No source parameter means refresh everything.
	var sources []model.Source
	if raw := r.URL.Query().Get("source"); raw == "" {
		sources = model.Sources()
	} else {
		source, err := model.ParseSource(raw)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return
		}
		sources = []model.Source{source}
	}

	scheduled := make([]model.Source, 0, len(sources))
	for _, source := range sources {
		if s.refresher.Trigger(source) {
			scheduled = append(scheduled, source)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"scheduled": scheduled})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Stats().Subscribers,
		"time":        time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps the provider error taxonomy onto HTTP statuses:
// NotFound→404, RateLimited→429 with Retry-After, Validation→422, anything
// transient or unknown→502.
func (s *Server) writeError(w http.ResponseWriter, source model.Source, err error) {
	switch {
	case provider.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Source: string(source)})
	case provider.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Source: string(source)})
	default:
		if hint, ok := provider.IsRateLimited(err); ok {
			if hint > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(hint.Seconds())))
			}
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error(), Source: string(source)})
			return
		}
		s.logger.Error("upstream failure", "source", source, "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream unavailable", Source: string(source)})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
