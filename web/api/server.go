// Package api serves import runs and the tasks they created over HTTP and
// streams import notifications to browsers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hochfrequenz/project-tracker/internal/domain"
	"github.com/hochfrequenz/project-tracker/internal/notify"
	"github.com/hochfrequenz/project-tracker/internal/pipeline"
	"github.com/hochfrequenz/project-tracker/internal/taskstore"
)

// Store interface for database operations
type Store interface {
	ListTasks(ctx context.Context, opts taskstore.ListOptions) ([]*domain.Task, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	ListChecklists(ctx context.Context, taskID string) ([]*domain.Checklist, error)
	ListImportRuns(ctx context.Context, projectID string, limit int) ([]*domain.ImportRun, error)
	GetImportRun(ctx context.Context, id string) (*domain.ImportRun, error)
}

// Importer runs one import
type Importer interface {
	Run(ctx context.Context, req pipeline.Request) (*domain.ImportRun, error)
}

// EventImportCompleted is the SSE event type sent after every import
const EventImportCompleted = "import.completed"

// Server is the HTTP API server
type Server struct {
	store    Store
	importer Importer
	addr     string
	router   *mux.Router
	sseHub   *SSEHub
	validate *validator.Validate
	log      logrus.FieldLogger
}

// NewServer creates a new API server. importer may be nil, in which case
// imports are rejected.
func NewServer(store Store, importer Importer, addr string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		store:    store,
		importer: importer,
		addr:     addr,
		router:   mux.NewRouter(),
		sseHub:   NewSSEHub(),
		validate: validator.New(),
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router.HandleFunc("/api/runs", s.listRunsHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/runs/{id}", s.getRunHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/tasks/{id}", s.getTaskHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/projects/{project}/tasks", s.listTasksHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/api/projects/{project}/imports", s.importHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/api/events", s.sseHandler).Methods(http.MethodGet)

	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.sseHub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("HTTP shutdown")
		}
	}()

	s.log.WithField("addr", s.addr).Info("Serving API")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Broadcast sends an event to all SSE clients
func (s *Server) Broadcast(event SSEEvent) {
	s.sseHub.Broadcast(event)
}

// Send implements notify.Notifier by streaming the notification to every
// connected browser.
func (s *Server) Send(n notify.Notification) error {
	s.Broadcast(SSEEvent{Type: EventImportCompleted, Data: notify.PayloadFor(n)})
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).Round(time.Millisecond),
		}).Debug("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
