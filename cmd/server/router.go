package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pathforge/pathforge-api/internal/api"
	apimiddleware "github.com/pathforge/pathforge-api/internal/api/middleware"
)

// setupRouter builds the chi router with standard middleware and all API
// routes.
func (app *application) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	generationHandler := api.NewGenerationHandler(app.svc)
	queueHandler := api.NewQueueHandler(app.svc)
	reconcileHandler := api.NewReconcileHandler(app.rec)

	r.Route("/api", func(r chi.Router) {
		r.Route("/learners/{learnerID}", func(r chi.Router) {
			r.Post("/generation", generationHandler.StartGeneration)
			r.Route("/units/{unitID}", func(r chi.Router) {
				r.Get("/", generationHandler.UnitStatus)
				r.Post("/progress", generationHandler.RecordProgress)
			})
			r.Post("/items/{itemID}/outcome", generationHandler.RecordOutcome)
		})
		r.Post("/queue/process", queueHandler.ProcessQueue)
		r.Post("/source-changes", reconcileHandler.SourceChange)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
