package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/quote-gateway/internal/aggregate"
	"github.com/rickgao/quote-gateway/internal/config"
	"github.com/rickgao/quote-gateway/internal/hub"
	"github.com/rickgao/quote-gateway/internal/model"
	"github.com/rickgao/quote-gateway/internal/quote"
	"github.com/rickgao/quote-gateway/internal/refresh"
)

// Server serves the gateway's HTTP and WebSocket endpoints.
type Server struct {
	cfg        config.ServerConfig
	quotes     *quote.Service
	aggregator *aggregate.Aggregator
	hub        *hub.Hub
	refresher  *refresh.Refresher
	interest   *refresh.Interest
	logger     *slog.Logger

	srv *http.Server
}

// New assembles the server over the gateway's services. registry backs the
// /metrics endpoint and may be nil to disable it.
func New(
	cfg config.ServerConfig,
	metricsPath string,
	registry *prometheus.Registry,
	quotes *quote.Service,
	aggregator *aggregate.Aggregator,
	h *hub.Hub,
	refresher *refresh.Refresher,
	interest *refresh.Interest,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:        cfg,
		quotes:     quotes,
		aggregator: aggregator,
		hub:        h,
		refresher:  refresher,
		interest:   interest,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/quotes/{source}/{symbol}", s.handleQuote)
	mux.HandleFunc("GET /api/quotes/{source}/{symbol}/history", s.handleHistory)
	mux.HandleFunc("GET /api/markets/overview", s.handleOverview)
	mux.HandleFunc("GET /api/markets/movers", s.handleMovers)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if registry != nil {
		mux.Handle("GET "+metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the routed mux, for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start begins serving. It returns once the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.srv.Shutdown(ctx)
}

// parseSource validates the {source} path segment.
func parseSource(r *http.Request) (model.Source, error) {
	return model.ParseSource(r.PathValue("source"))
}

// touch records REST interest so the refresher keeps the symbol warm.
func (s *Server) touch(source model.Source, symbol string) {
	if s.interest != nil {
		s.interest.Touch(source, symbol)
	}
}

// requestTimeout bounds handler work independent of client behavior.
const requestTimeout = 15 * time.Second
