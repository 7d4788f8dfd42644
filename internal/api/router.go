package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/blueherons/stattracker/internal/api/handlers"
	"github.com/blueherons/stattracker/internal/api/middleware"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.ClientCache)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(h.Version))

	// Authentication collaborator
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", h.Login)
		r.Get("/logout", h.Logout)
		r.Get("/callback", h.Callback)
	})

	// Agent API — every route resolves the auth code to an agent
	r.Route("/api/{authCode}", func(r chi.Router) {
		r.Get("/", h.GetAgent)

		r.Get("/badges", h.GetBadges)
		r.Get("/badges/{what}", h.GetBadges)
		r.Get("/ratios", h.GetRatios)

		r.Post("/submit", h.SubmitStats)

		r.Get("/tokens", h.ListTokens)
		r.Post("/tokens/{name}", h.CreateToken)
		r.Delete("/tokens/{name}", h.RevokeToken)

		r.Get("/{stat}", h.GetStatView)
		r.Get("/{stat}/{view}", h.GetStatView)
		r.Get("/{stat}/{view}/{when}", h.GetStatView)
	})

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func versionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"` + version + `"}`))
	}
}
