package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"naas/internal/platform/httpmw"
	"naas/internal/platform/metrics"
)

// legacySunsetDate is the deprecation sunset NAAS advertises on its
// unversioned aliases (spec.md §4.5 "Versioning").
const legacySunsetDate = "2027-01-31"

// Router builds the full NAAS route table: the canonical /v1 surface, the
// legacy unversioned aliases with deprecation headers, and the operational
// endpoints (healthcheck, OpenAPI doc, metrics).
func Router(h *Handler, logger *slog.Logger, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(httpmw.RequestID)
	r.Use(httpmw.ClientMetadata)
	r.Use(httpmw.Logger(logger))
	if m != nil {
		r.Use(httpmw.Metrics(m))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	r.Get("/", h.HandleHealth)
	r.Get("/healthcheck", h.HandleHealth)
	r.Get("/apidoc/openapi.json", HandleOpenAPI)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/send_command", h.HandleSubmitCommand)
		r.Post("/send_config", h.HandleSubmitConfig)
		r.Get("/send_command/{job_id}", h.HandleGetJob)
		r.Get("/send_config/{job_id}", h.HandleGetJob)
		r.Get("/jobs", h.HandleListJobs)
		r.Delete("/jobs/{job_id}", h.HandleCancelJob)
	})

	r.Group(func(r chi.Router) {
		r.Use(deprecated)
		r.Post("/send_command", h.HandleSubmitCommand)
		r.Post("/send_config", h.HandleSubmitConfig)
		r.Get("/send_command/{job_id}", h.HandleGetJob)
		r.Get("/send_config/{job_id}", h.HandleGetJob)
	})

	return r
}

// deprecated marks a response with the headers spec.md §4.5's legacy-alias
// note requires.
func deprecated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-API-Deprecated", "true")
		w.Header().Set("X-API-Sunset", legacySunsetDate)
		next.ServeHTTP(w, r)
	})
}
