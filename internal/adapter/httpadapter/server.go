package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
	"github.com/couchcryptid/burn-suitability-etl/internal/pipeline"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// Refresher queues an out-of-schedule pipeline run.
type Refresher interface {
	Trigger() bool
}

// SnapshotReader reads the most recently persisted region snapshots.
type SnapshotReader interface {
	LoadCombined(ctx context.Context) ([]domain.RegionSnapshot, error)
	LoadRegion(ctx context.Context, id string) (domain.RegionSnapshot, error)
}

// RunHistory lists recent pipeline runs, newest first.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]pipeline.RunReport, error)
}

// Deps groups the collaborators behind the API routes.
type Deps struct {
	Ready     sharedobs.ReadinessChecker
	Refresher Refresher
	Snapshots SnapshotReader
	History   RunHistory
}

// Server exposes health, metrics, snapshot and run-history endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with health, /metrics, /refresh, /regions and /runs routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("GET /regions", s.handleRegions)
	mux.HandleFunc("GET /regions/{id}", s.handleRegion)
	mux.HandleFunc("GET /runs", s.handleRuns)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	status := "queued"
	if !s.deps.Refresher.Trigger() {
		status = "already queued"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": status})
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.deps.Snapshots.LoadCombined(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Snapshots.LoadRegion(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := s.deps.History.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if runs == nil {
		runs = []pipeline.RunReport{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Error("http request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
