package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/maraichr/sqlscope/internal/analysis"
	apihandler "github.com/maraichr/sqlscope/internal/api/handler"
	apimw "github.com/maraichr/sqlscope/internal/api/middleware"
)

func NewRouter(logger *slog.Logger, engine *analysis.Engine) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(engine.Connection())
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		h := apihandler.NewAnalyzeHandler(logger, engine)
		r.Post("/analyze", h.Analyze)
		r.Post("/columns", h.Columns)
		r.Post("/scopes", h.Scopes)
	})

	return r
}
