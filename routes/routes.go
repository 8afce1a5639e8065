package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/huzzy12/Andrew-Wilkinson-AI/app"
	"github.com/huzzy12/Andrew-Wilkinson-AI/handlers"
	"github.com/huzzy12/Andrew-Wilkinson-AI/middleware"
	"github.com/huzzy12/Andrew-Wilkinson-AI/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	requestTimeout := deps.Config.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))

	allowCredentials := true
	for _, origin := range deps.Config.Server.AllowedOrigins {
		if origin == "*" {
			allowCredentials = false
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	var db *sql.DB
	if deps.DB != nil {
		db = deps.DB.DB
	}
	health := handlers.NewHealthHandler(db, deps.Retrieval, deps.Logger)

	var auditor handlers.AuditReporter
	if deps.Audit != nil {
		auditor = deps.Audit
	}
	status := handlers.NewStatusHandler(deps.Config.Environment, deps.Retrieval, deps.Generator, auditor, deps.Logger)
	ask := handlers.NewAskHandler(deps.Retrieval, deps.Logger)
	queries := handlers.NewQueryLogHandler(deps.QueryLogs, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", status.HandleStatus)
		r.Post("/ask", ask.HandleAsk)
		r.Get("/queries", queries.HandleList)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteMethodNotAllowed(w)
	})

	return r
}
