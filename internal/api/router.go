package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Handle("/metrics", promhttp.Handler())

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", apiHandler.HealthHandler)

		r.Post("/ask", apiHandler.AskHandler)

		r.Route("/videos/{videoID}", func(r chi.Router) {
			// Indexing
			r.Post("/index", apiHandler.IndexVideoHandler)
			r.Delete("/index", apiHandler.DeleteIndexHandler)
			r.Get("/status", apiHandler.IndexStatusHandler)
			r.Put("/chunks/{chunkIndex}", apiHandler.ImproveChunkHandler)

			// Questions
			r.Post("/ask", apiHandler.AskVideoHandler)

			// Answer history
			r.Get("/analytics", apiHandler.AnalyticsHandler)

			// Summaries
			r.Put("/summary", apiHandler.SetSummaryHandler)
			r.Post("/summary/generate", apiHandler.GenerateSummaryHandler)
		})
	})

	return r
}
