// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/moveboard/moveboard-go/internal/core"
	"github.com/moveboard/moveboard-go/internal/processing"
	"github.com/moveboard/moveboard-go/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app        *core.App
	db         *sql.DB
	store      *store.Store
	reconciler *processing.Reconciler
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	staleAfter := time.Duration(app.Config().Processing.StaleAfterMinutes) * time.Minute
	return &Server{
		app:        app,
		db:         app.DB(),
		store:      app.StateStore(),
		reconciler: processing.NewReconciler(app.Registry(), app.StateStore(), staleAfter),
	}
}

// App returns the core application, mainly for tests.
func (s *Server) App() *core.App {
	return s.app
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/version", s.handleGetVersion)

	r.Route("/api", func(r chi.Router) {
		// Worker-facing webhooks, authenticated by shared secret.
		r.Group(func(r chi.Router) {
			r.Use(s.WorkerAuthMiddleware)

			r.Post("/webhooks/processing-complete", s.handleProcessingComplete)
			r.Post("/webhooks/processing-started", s.handleProcessingStarted)
		})

		// In-flight job tracking, driven by the upload UI.
		r.Post("/projects/{projectID}/processing", s.handleRegisterProcessing)
		r.Get("/projects/{projectID}/processing", s.handleListProcessing)

		// Admin Job Triggers
		r.Route("/admin", func(r chi.Router) {
			r.Get("/jobs/status", s.handleGetAdminJobsStatus)
			r.Post("/jobs/run", s.handleRunAdminJob)
		})
	})

	// WebSocket route: one long-lived stream per tab watching a project.
	r.Get("/ws/projects/{projectID}/processing", func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")
		if projectID == "" {
			RespondWithError(w, http.StatusBadRequest, "Missing project id")
			return
		}
		s.app.WsHub().ServeWs(w, r, projectID)
	})

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if err := s.db.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
