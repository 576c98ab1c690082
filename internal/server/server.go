// Package server implements the fleetmon metrics exposition server.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwsmith1983/fleetmon/internal/scheduler"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr     string
	Gatherer prometheus.Gatherer
	// Stores are pinged by /health, keyed by name.
	Stores map[string]Pinger
	// Tasks reports background loop status for /health. Optional.
	Tasks func() map[string]scheduler.TaskStatus
	// Buffered reports the number of snapshots waiting to be flushed. Optional.
	Buffered func() int
	// Recorder, when set, records the server's own requests.
	Recorder Recorder
	Logger   *slog.Logger
}

// Server serves /metrics for scraping and /health for probes.
type Server struct {
	opts   Options
	router chi.Router
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server.
func New(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	// Outside the recoverer so requests that panic are still recorded.
	if opts.Recorder != nil {
		r.Use(RecordRequests(opts.Recorder))
	}
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	r.Get("/health", s.health)

	s.router = r
	return s
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("exposition server listening", "addr", s.opts.Addr)
	return s.srv.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

type healthResponse struct {
	Status   string                          `json:"status"`
	Stores   map[string]string               `json:"stores,omitempty"`
	Tasks    map[string]scheduler.TaskStatus `json:"tasks,omitempty"`
	Buffered *int                            `json:"buffered,omitempty"`
}

// health returns 200 when every store answers and 503 otherwise.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Stores: make(map[string]string, len(s.opts.Stores))}
	for name, p := range s.opts.Stores {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "store", name, "error", err)
			resp.Stores[name] = "unreachable"
			resp.Status = "degraded"
			continue
		}
		resp.Stores[name] = "ok"
	}
	if s.opts.Tasks != nil {
		resp.Tasks = s.opts.Tasks()
	}
	if s.opts.Buffered != nil {
		n := s.opts.Buffered()
		resp.Buffered = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encoding health response", "error", err)
	}
}
