// Package control exposes the running sweep over HTTP so that a browser or
// script can watch its progress and abort it.
package control

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gotmc/eis"
	"github.com/rs/zerolog"
)

// Status is the JSON body of GET /status.
type Status struct {
	RunID    string `json:"run_id,omitempty"`
	SampleID string `json:"sample_id,omitempty"`
	State    string `json:"state"`
	Emitted  int    `json:"emitted"`
	Planned  int    `json:"planned"`
}

// Server serves the status of the current run and accepts cancel requests.
type Server struct {
	mu      sync.RWMutex
	run     *eis.Run
	origins []string
	log     zerolog.Logger
}

func NewServer(allowedOrigins []string, log zerolog.Logger) *Server {
	return &Server{origins: allowedOrigins, log: log}
}

// SetRun makes r the run reported and cancelled by the server.
func (s *Server) SetRun(r *eis.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = r
}

func (s *Server) current() *eis.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Get("/status", s.status)
	r.Post("/cancel", s.cancel)
	return r
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusOf(s.current()))
}

func (s *Server) cancel(w http.ResponseWriter, _ *http.Request) {
	run := s.current()
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run in progress"})
		return
	}
	if run.State().Terminal() {
		writeJSON(w, http.StatusConflict, statusOf(run))
		return
	}
	run.RequestCancel()
	s.log.Info().Str("run", run.ID().String()).Msg("cancel requested over http")
	writeJSON(w, http.StatusAccepted, statusOf(run))
}

func statusOf(run *eis.Run) Status {
	if run == nil {
		return Status{State: eis.Idle.String()}
	}
	emitted, planned := run.Progress()
	return Status{
		RunID:    run.ID().String(),
		SampleID: run.Config().SampleID,
		State:    run.State().String(),
		Emitted:  emitted,
		Planned:  planned,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
