package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/adscribe-api/internal/api"
	apimiddleware "github.com/phrazzld/adscribe-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and
// middleware registered.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.submitter, app.recordStore, app.watcher, app.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract-ad-concept", taskHandler.ExtractAdConcept)
		r.Post("/extract-sales-page", taskHandler.ExtractSalesPage)
		r.Post("/generate-ad-recipe", taskHandler.GenerateAdRecipe)

		r.Get("/tasks/{task_id}", taskHandler.GetTask)
		r.Get("/tasks/{task_id}/stream", taskHandler.StreamTask)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
