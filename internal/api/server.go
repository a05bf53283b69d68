// Package api exposes the HTTP interface for the lead discovery service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/pipeline"
	"github.com/ReeceHarding/new-scraper-sub001/internal/storage"
)

// Runner executes one discovery run for a goal.
type Runner interface {
	Run(ctx context.Context, goal string) (*pipeline.Report, error)
}

// RunStatus is the lifecycle state of an async discovery run.
type RunStatus string

// Discovery run states reported by the status endpoint.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DiscoveryRun tracks one async run submitted over HTTP.
type DiscoveryRun struct {
	ID        string           `json:"id"`
	Goal      string           `json:"goal"`
	Status    RunStatus        `json:"status"`
	Error     string           `json:"error,omitempty"`
	Report    *pipeline.Report `json:"report,omitempty"`
	Submitted time.Time        `json:"submitted"`
	Completed *time.Time       `json:"completed,omitempty"`
}

// Server wires HTTP handlers to the pipeline and query storage.
type Server struct {
	router chi.Router
	runner Runner
	store  storage.QueryStorage
	logger *zap.Logger

	mu   sync.RWMutex
	runs map[string]*DiscoveryRun

	// runCtx scopes background runs so Shutdown can stop them.
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner Runner, store storage.QueryStorage, logger *zap.Logger) *Server {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:    runner,
		store:     store,
		logger:    logger,
		runs:      make(map[string]*DiscoveryRun),
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/discover", s.submitDiscovery)
		r.Route("/discoveries/{run_id}", func(r chi.Router) {
			r.Get("/", s.getDiscovery)
			r.Get("/report", s.getDiscoveryReport)
		})
		r.Route("/queries/{query_id}", func(r chi.Router) {
			r.Get("/results", s.getQueryResults)
			r.Get("/analytics", s.getQueryAnalytics)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels in-flight discovery runs and waits for them to finish.
func (s *Server) Shutdown() {
	s.cancelRun()
	s.wg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type discoverRequest struct {
	Goal string `json:"goal"`
}

// submitDiscovery accepts a business goal and starts an async run. The
// response carries the run ID for polling.
func (s *Server) submitDiscovery(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Goal) == "" {
		s.writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	run := &DiscoveryRun{
		ID:        uuid.NewString(),
		Goal:      req.Goal,
		Status:    RunStatusQueued,
		Submitted: time.Now().UTC(),
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()

	s.wg.Add(1)
	go s.executeRun(run.ID, req.Goal)

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"discovery_id": run.ID,
		"status":       string(RunStatusQueued),
	})
}

func (s *Server) executeRun(runID, goal string) {
	defer s.wg.Done()

	s.setRunStatus(runID, RunStatusRunning, nil, "")
	report, err := s.runner.Run(s.runCtx, goal)
	if err != nil {
		s.logger.Error("discovery run failed",
			zap.String("run_id", runID), zap.Error(err))
		s.setRunStatus(runID, RunStatusFailed, nil, err.Error())
		return
	}
	s.setRunStatus(runID, RunStatusCompleted, report, "")
}

func (s *Server) setRunStatus(runID string, status RunStatus, report *pipeline.Report, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return
	}
	run.Status = status
	run.Error = errMsg
	if report != nil {
		run.Report = report
	}
	if status == RunStatusCompleted || status == RunStatusFailed {
		now := time.Now().UTC()
		run.Completed = &now
	}
}

func (s *Server) getDiscovery(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(chi.URLParam(r, "run_id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "discovery run not found")
		return
	}
	// Status view omits the full report payload.
	view := run
	view.Report = nil
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) getDiscoveryReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(chi.URLParam(r, "run_id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "discovery run not found")
		return
	}
	if run.Status != RunStatusCompleted {
		s.writeError(w, http.StatusConflict, "discovery run is not completed")
		return
	}
	s.writeJSON(w, http.StatusOK, run.Report)
}

func (s *Server) lookupRun(runID string) (DiscoveryRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return DiscoveryRun{}, false
	}
	return *run, true
}

func (s *Server) getQueryResults(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "query_id")
	results, err := s.store.ResultsForQuery(r.Context(), queryID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "query not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query_id": queryID,
		"results":  results,
	})
}

func (s *Server) getQueryAnalytics(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "query_id")
	analytics, err := s.store.QueryAnalytics(r.Context(), queryID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "query not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query_id":  queryID,
		"analytics": analytics,
	})
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
