// Package server exposes health, status and a manual cycle trigger over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/hejijunhao/warden/internal/cycle"
)

// Coordinator is the part of cycle.Coordinator the server uses.
type Coordinator interface {
	Run(ctx context.Context) cycle.Report
	State() cycle.State
	InFlight() bool
	LastReport() (cycle.Report, bool)
}

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f(ctx).
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type check struct {
	name   string
	pinger Pinger
}

// Server is the status HTTP server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	coord        Coordinator
	checks       []check
	checkTimeout time.Duration
	version      string
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithCheck adds a named dependency to /health.
func WithCheck(name string, p Pinger) Option {
	return func(s *Server) { s.checks = append(s.checks, check{name: name, pinger: p}) }
}

// WithVersion sets the version reported by /status.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server listening on addr.
func New(addr string, coord Coordinator, opts ...Option) *Server {
	router := mux.NewRouter()
	s := &Server{
		router:       router,
		coord:        coord,
		checkTimeout: 5 * time.Second,
		logger:       slog.Default(),
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/run", s.handleRun).Methods(http.MethodPost)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
	code := http.StatusOK
	for _, c := range s.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			resp.Checks[c.name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "ok"
	}
	writeJSON(w, code, resp)
}

type statusResponse struct {
	State      cycle.State   `json:"state"`
	InFlight   bool          `json:"in_flight"`
	Version    string        `json:"version,omitempty"`
	LastReport *cycle.Report `json:"last_report,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		State:    s.coord.State(),
		InFlight: s.coord.InFlight(),
		Version:  s.version,
	}
	if rep, ok := s.coord.LastReport(); ok {
		resp.LastReport = &rep
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRun runs a cycle synchronously. The cycle outlives a disconnected
// client.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.coord.InFlight() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cycle already in progress"})
		return
	}
	rep := s.coord.Run(context.WithoutCancel(r.Context()))
	if rep.Outcome == cycle.OutcomeSkipped {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "cycle already in progress"})
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
