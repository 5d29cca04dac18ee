package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/config"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/evaluation"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/services"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/templates"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/thresholds"
	"github.com/kalmansforge/web3-bd-guide-sub000/internal/transfer"
)

// Deps are the components served by the API
type Deps struct {
	Templates  *templates.Repository
	Thresholds *thresholds.Layer
	Session    *evaluation.Session
	Transfer   *transfer.Service
	Registry   *services.Registry
	Bus        *events.Bus
}

// Server represents the HTTP API server
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	templates  *templates.Repository
	thresholds *thresholds.Layer
	session    *evaluation.Session
	transfer   *transfer.Service
	registry   *services.Registry
	bus        *events.Bus
	identity   *IdentityMiddleware
	started    time.Time
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Deps, defaultUserID string) *Server {
	registry := deps.Registry
	if registry == nil {
		registry = services.NewRegistry()
	}
	bus := deps.Bus
	if bus == nil {
		bus = events.NewBus()
	}

	s := &Server{
		config:     cfg,
		templates:  deps.Templates,
		thresholds: deps.Thresholds,
		session:    deps.Session,
		transfer:   deps.Transfer,
		registry:   registry,
		bus:        bus,
		identity:   NewIdentityMiddleware(defaultUserID),
		started:    time.Now().UTC(),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", UserHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity.Identify)

		// The event stream is long-lived and must not be cut by the request timeout
		r.Get("/events", s.handleEventsWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)
				r.Get("/active", s.handleGetActiveTemplate)
				r.Get("/blank", s.handleBlankTemplate)
				r.Post("/import", s.handleImportTemplate)
				r.Get("/diff", s.handleDiffTemplates)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTemplate)
					r.Put("/", s.handleUpdateTemplate)
					r.Delete("/", s.handleDeleteTemplate)
					r.Post("/activate", s.handleActivateTemplate)
					r.Post("/duplicate", s.handleDuplicateTemplate)
					r.Get("/export", s.handleExportTemplate)
				})
			})

			r.Route("/thresholds", func(r chi.Router) {
				r.Get("/", s.handleListThresholds)
				r.Post("/save", s.handleSaveThresholds)
				r.Post("/reset", s.handleResetThresholds)
				r.Post("/apply", s.handleApplyThresholds)
				r.Put("/{categoryId}/{metricId}", s.handleUpdateThreshold)
				r.Get("/{categoryId}/{metricId}/{tier}", s.handleGetThreshold)
			})

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.handleListProjects)
				r.Post("/", s.handleCreateProject)

				r.Route("/current", func(r chi.Router) {
					r.Get("/", s.handleGetCurrentProject)
					r.Delete("/", s.handleCloseProject)
					r.Put("/metrics/{categoryId}/{metricId}", s.handleUpdateMetric)
					r.Get("/metrics/{categoryId}/{metricId}/navigation", s.handleMetricNavigation)
					r.Put("/notes", s.handleUpdateNotes)
					r.Post("/save", s.handleSaveProject)
				})

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetProject)
					r.Delete("/", s.handleDeleteProject)
					r.Post("/open", s.handleOpenProject)
					r.Get("/progress", s.handleProjectProgress)
					r.Get("/score", s.handleProjectScore)
					r.Get("/export", s.handleExportProject)
				})
			})

			r.Route("/remote/projects", func(r chi.Router) {
				r.Get("/", s.handleListRemoteProjects)
				r.Get("/{id}", s.handleGetRemoteProject)
			})

			r.Route("/data", func(r chi.Router) {
				r.Get("/export", s.handleExportData)
				r.Post("/import", s.handleImportData)
				r.Get("/usage", s.handleUsage)
				r.Delete("/", s.handleClearData)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
