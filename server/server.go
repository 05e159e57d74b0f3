package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lrhflow/flow/server/api"
	"github.com/lrhflow/flow/server/auth"
	"github.com/lrhflow/flow/server/scheduler"
	"github.com/lrhflow/flow/server/storage"
)

const (
	// HTTP headers
	headerContentType = "Content-Type"

	// MIME types
	mimeTypeJSON     = "application/json; charset=utf-8"
	mimeTypeCalendar = "text/calendar; charset=utf-8"

	// HealthPath is served without authentication
	HealthPath = "/healthz"

	defaultRealm = "LRH Flow"
	maxBodyBytes = 1 << 20
)

// Server exposes the scheduler's entry points over HTTP
type Server struct {
	storage   storage.Storage
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
	handler   http.Handler
}

// Option represents a configuration option for the Server
type Option func(*Server)

// WithLogger sets the logger for the server
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for iCalendar timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a server. Every route except HealthPath requires Basic
// authentication against authn under realm.
func New(store storage.Storage, sched *scheduler.Scheduler, authn auth.Authenticator, realm string, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if authn == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if realm == "" {
		realm = defaultRealm
	}

	s := &Server{
		storage:   store,
		scheduler: sched,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+HealthPath, s.handleHealth)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /api/tasks/{id}/status", s.handleUpdateStatus)
	mux.HandleFunc("POST /api/recurrence/preview", s.handlePreview)
	mux.Handle("POST /api/sweep", auth.RequireRole(http.HandlerFunc(s.handleSweep), auth.RoleCEO, auth.RoleExecutive))
	mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	mux.Handle("POST /api/tasks/import", auth.RequireRole(http.HandlerFunc(s.handleImport), auth.RoleCEO, auth.RoleExecutive))

	s.handler = s.logRequests(auth.Middleware(authn, realm, HealthPath)(mux))
	return s, nil
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(headerContentType, "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(headerContentType, mimeTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: msg})
}

// writeStorageError maps storage error types to HTTP statuses
func (s *Server) writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case storage.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case storage.IsAlreadyExists(err):
		s.writeError(w, http.StatusConflict, err.Error())
	case storage.IsType(err, storage.ErrInvalidInput):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("storage failure", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
