package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumnicode/engine/internal/api/handlers"
	mw "github.com/lumnicode/engine/internal/api/middleware"
)

type Dependencies struct {
	Auth        func(http.Handler) http.Handler
	UserLoader  func(http.Handler) http.Handler
	RateLimiter *mw.RateLimiter
	CORSOrigins []string

	HealthHandler   *handlers.HealthHandler
	AuthHandler     *handlers.AuthHandler
	ProjectsHandler *handlers.ProjectsHandler
	FilesHandler    *handlers.FilesHandler
	APIKeysHandler  *handlers.APIKeysHandler
	AIHandler       *handlers.AIHandler
	// ProgressHub serves the generation progress WebSocket.
	ProgressHub http.Handler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.Metrics)
	r.Use(mw.CORS(dep.CORSOrigins))

	hh := dep.HealthHandler
	r.Get("/health", hh.Liveness)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// The upgrade is authenticated with ?token= and must not be compressed.
	r.With(dep.Auth, dep.UserLoader).Get("/ws/ai-progress/{projectId}", dep.ProgressHub.ServeHTTP)

	r.Route("/api/v1", func(api chi.Router) {
		if dep.RateLimiter != nil {
			api.Use(dep.RateLimiter.Middleware)
		}
		api.Use(chimid.Compress(5))
		api.Use(dep.Auth)
		api.Use(dep.UserLoader)

		api.Get("/auth/me", dep.AuthHandler.Me)

		api.Route("/projects", func(pr chi.Router) {
			pr.Get("/", dep.ProjectsHandler.List)
			pr.Post("/", dep.ProjectsHandler.Create)
			pr.Get("/{id}", dep.ProjectsHandler.Get)
			pr.Put("/{id}", dep.ProjectsHandler.Update)
			pr.Delete("/{id}", dep.ProjectsHandler.Delete)
			pr.Get("/{id}/snapshots", dep.ProjectsHandler.ListSnapshots)
			pr.Post("/{id}/snapshots", dep.ProjectsHandler.CreateSnapshot)
			pr.Post("/{id}/snapshots/{snapshotId}/restore", dep.ProjectsHandler.RestoreSnapshot)
		})

		api.Route("/files", func(fr chi.Router) {
			fr.Get("/", dep.FilesHandler.List)
			fr.Post("/", dep.FilesHandler.Create)
			fr.Get("/{id}", dep.FilesHandler.Get)
			fr.Put("/{id}", dep.FilesHandler.Update)
			fr.Delete("/{id}", dep.FilesHandler.Delete)
			fr.Get("/{id}/versions", dep.FilesHandler.Versions)
		})

		api.Post("/assist", dep.AIHandler.Assist)

		api.Route("/api-keys", func(kr chi.Router) {
			kr.Get("/", dep.APIKeysHandler.List)
			kr.Post("/", dep.APIKeysHandler.Create)
			kr.Get("/usage", dep.APIKeysHandler.Usage)
			kr.Get("/providers", dep.APIKeysHandler.Providers)
			kr.Post("/validate", dep.APIKeysHandler.Validate)
			kr.Put("/{id}/deactivate", dep.APIKeysHandler.Deactivate)
			kr.Delete("/{id}", dep.APIKeysHandler.Delete)
		})

		api.Route("/ai", func(ar chi.Router) {
			ar.Post("/generate/{projectId}", dep.AIHandler.Generate)
			ar.Get("/session/{id}", dep.AIHandler.Session)
			ar.Post("/session/{id}/stop", dep.AIHandler.Stop)
			ar.Post("/session/{id}/pause", dep.AIHandler.Pause)
			ar.Post("/session/{id}/resume", dep.AIHandler.Resume)
			ar.Get("/history/{projectId}", dep.AIHandler.History)
			ar.Get("/providers", dep.AIHandler.Providers)
		})
	})

	return r
}
