package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/stocktrail/stocktrail/internal/batch"
	"github.com/stocktrail/stocktrail/internal/insights"
	"github.com/stocktrail/stocktrail/internal/migrate"
	"github.com/stocktrail/stocktrail/internal/observability"
	"github.com/stocktrail/stocktrail/internal/stock"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	ItemsHandler    *stock.Handler
	BatchesHandler  *batch.Handler
	InsightsHandler *insights.Handler
	MigrateHandler  *migrate.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		params.ItemsHandler.MountRoutes(api)
		params.BatchesHandler.MountRoutes(api)
		if params.InsightsHandler != nil {
			params.InsightsHandler.MountRoutes(api)
		}
		if params.MigrateHandler != nil {
			params.MigrateHandler.MountRoutes(api)
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
