package api

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/agentoven/agentoven/control-plane/internal/api/handlers"
	"github.com/agentoven/agentoven/control-plane/internal/api/middleware"
	"github.com/agentoven/agentoven/control-plane/internal/config"
	"github.com/agentoven/agentoven/control-plane/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router exposing the thin surface §6.3
// promises to the API layer: trigger a discovery run, poll its status,
// subscribe to its progress, and query the resulting inventory.
func NewRouter(cfg *config.Config, h *handlers.Handlers, apiKeyAuth *middleware.APIKeyAuth, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.OrgExtractor)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Metrics(m))

	if apiKeyAuth != nil {
		r.Use(apiKeyAuth.Middleware)
	}

	corsOrigins := parseCORSOrigins()
	isWildcard := len(corsOrigins) == 1 && corsOrigins[0] == "*"
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-Id", "X-Request-Id", "X-API-Key"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: !isWildcard,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/{connectionID}", func(r chi.Router) {
		r.Post("/discover", h.StartDiscovery)
		r.Get("/discovery", h.GetDiscoveryStatus)
		r.Get("/discovery/events", h.StreamDiscoveryEvents)
	})

	r.Route("/automations", func(r chi.Router) {
		r.Get("/", h.ListAutomations)
		r.Get("/stats", h.AutomationStats)
	})

	return r
}

// parseCORSOrigins reads allowed CORS origins from the environment.
// Default: wildcard (open access, no credentials).
func parseCORSOrigins() []string {
	originsEnv := os.Getenv("DISCOVERY_CORS_ORIGINS")
	if originsEnv == "" {
		return []string{"*"}
	}

	var origins []string
	for _, o := range strings.Split(originsEnv, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "shadow-automation-discovery",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "shadow-automation-discovery",
		})
	}
}
