// Package server exposes the review queue and job history over a local HTTP
// API so editors and scripts can start, watch and cancel review jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xiaojiou176/quotio-sub003/internal/history"
	"github.com/xiaojiou176/quotio-sub003/internal/review"
)

// Runner is the subset of *review.Queue the server drives.
type Runner interface {
	Validate(cfg review.Config) error
	Run(ctx context.Context, cfg review.Config, sink review.EventSink) (*review.Result, error)
}

// Server tracks jobs started through the API. Jobs are keyed by their job ID.
type Server struct {
	queue Runner
	logf  func(format string, args ...any)

	// ctx parents every job; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	runs map[string]*runState
}

// runState is the live view of one job started by the server.
type runState struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	events []review.Event
	done   bool
	result *review.Result
	err    string
}

func (rs *runState) Emit(e review.Event) {
	rs.mu.Lock()
	rs.events = append(rs.events, e)
	rs.mu.Unlock()
}

// New returns a Server running jobs on queue. logf may be nil.
func New(queue Runner, logf func(format string, args ...any)) *Server {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		queue:  queue,
		logf:   logf,
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*runState),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/", s.handleStartJob)
		r.Get("/{id}", s.handleGetJob)
	})
	r.Route("/runs/{id}", func(r chi.Router) {
		r.Get("/events", s.handleRunEvents)
		r.Delete("/", s.handleCancelRun)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down the
// listener and cancels running jobs.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close cancels every running job and waits for them to finalize.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

type errorResponse struct {
	Error string `json:"error"`
}

type startResponse struct {
	JobID   string `json:"job_id"`
	JobPath string `json:"job_path"`
}

type eventsResponse struct {
	JobID  string         `json:"job_id"`
	Done   bool           `json:"done"`
	Error  string         `json:"error,omitempty"`
	Result *review.Result `json:"result,omitempty"`
	Events []review.Event `json:"events"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceParam(w, r)
	if !ok {
		return
	}
	jobs, err := history.List(ws)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if jobs == nil {
		jobs = []review.Summary{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ws, ok := workspaceParam(w, r)
	if !ok {
		return
	}
	job, err := history.Find(ws, chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleStartJob validates the config, starts the job in the background and
// answers 202 once the job directory exists.
func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	var cfg review.Config
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid job config: " + err.Error()})
		return
	}
	if err := s.queue.Validate(cfg); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	rs := &runState{cancel: cancel}
	started := make(chan startResponse, 1)
	sink := review.SinkFunc(func(e review.Event) {
		if e.Kind == review.EventPhaseChanged && e.Phase == review.PhasePreparing {
			s.register(e.JobID, rs)
			started <- startResponse{JobID: e.JobID}
		}
		rs.Emit(e)
	})

	finished := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		res, err := s.queue.Run(ctx, cfg, sink)
		rs.mu.Lock()
		rs.done, rs.result = true, res
		if err != nil {
			rs.err = err.Error()
		}
		rs.mu.Unlock()
		if res != nil {
			s.logf("job %s finished: %s", res.JobID, res.Phase)
		}
		finished <- err
	}()

	var resp startResponse
	select {
	case resp = <-started:
	case err := <-finished:
		// A job that ends immediately may still have created its directory.
		select {
		case resp = <-started:
		default:
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: fmt.Sprintf("job did not start: %v", err)})
			return
		}
	}
	resp.JobPath = review.JobDir(filepath.Clean(cfg.Workspace), resp.JobID)
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rs, ok := s.lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown run " + id})
		return
	}
	rs.mu.Lock()
	resp := eventsResponse{
		JobID:  id,
		Done:   rs.done,
		Error:  rs.err,
		Result: rs.result,
		Events: append([]review.Event(nil), rs.events...),
	}
	rs.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rs, ok := s.lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown run " + id})
		return
	}
	rs.cancel()
	s.logf("job %s cancellation requested", id)
	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "cancelled": true})
}

func (s *Server) register(id string, rs *runState) {
	s.mu.Lock()
	s.runs[id] = rs
	s.mu.Unlock()
}

func (s *Server) lookup(id string) (*runState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs, ok := s.runs[id]
	return rs, ok
}

func workspaceParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ws := strings.TrimSpace(r.URL.Query().Get("workspace"))
	if ws == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "workspace query parameter is required"})
		return "", false
	}
	return ws, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // headers already sent
}
