package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/rag-chat/app"
	"github.com/upb/rag-chat/handlers"
	"github.com/upb/rag-chat/middleware"
	"github.com/upb/rag-chat/utils"
	"github.com/upb/rag-chat/web"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware. No global timeout: streams last as long as the model.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	var db handlers.HealthChecker
	if deps.DB != nil {
		db = deps.DB
	}
	health := handlers.NewHealthHandler(deps.VectorStore, db, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Prometheus != nil {
		r.Method(http.MethodGet, "/metrics", deps.Prometheus.Handler())
	}

	// Chat page. Exact paths only, so unknown paths keep the JSON 404.
	ui := web.Handler()
	r.Method(http.MethodGet, "/", ui)
	r.Method(http.MethodGet, "/app.js", ui)

	rag := handlers.NewRagHandler(deps.Chat, deps.Logger)
	r.Route("/rag", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		if scope := deps.Config.Auth.RequiredScope; scope != "" {
			r.Use(deps.AuthMiddleware.RequireScope(scope))
		}
		r.Post("/call", rag.HandleCall)
		r.Post("/stream", rag.HandleStream)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusMethodNotAllowed, utils.ErrorResponse{
			Error:   "method_not_allowed",
			Message: r.Method + " is not allowed on " + r.URL.Path,
		})
	})

	return r
}
