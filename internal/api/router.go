package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/quicksched/internal/api/handler"
	apimw "github.com/notifyhub/quicksched/internal/api/middleware"
	"github.com/notifyhub/quicksched/internal/service"
)

const maxJSONBody = 1 << 20

// Deps collects what the HTTP surface needs.
type Deps struct {
	Service        *service.ScheduleService
	Reconcile      handler.ReconcileController
	Gatherer       prometheus.Gatherer
	Ping           func(ctx context.Context) error
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(d.Logger))

	ph := handler.NewPostHandler(d.Service, d.Logger)
	nh := handler.NewNotificationHandler(d.Service)
	ah := handler.NewAssetHandler(d.Service, d.MaxUploadBytes, d.Logger)
	rh := handler.NewReconcileHandler(d.Reconcile)
	hh := handler.NewHealthHandler(d.Ping)

	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Uploads carry their own, larger limit.
		r.Post("/assets", ah.Upload)

		r.Group(func(r chi.Router) {
			r.Use(chimw.RequestSize(maxJSONBody))

			r.Get("/posts/category/{category}", ph.ListByCategory)
			r.Post("/posts", ph.Create)
			r.Get("/posts", ph.List)
			r.Get("/posts/{id}", ph.GetByID)
			r.Put("/posts/{id}", ph.Update)
			r.Patch("/posts/{id}", ph.Update)
			r.Post("/posts/{id}/submit", ph.Submit)
			r.Delete("/posts/{id}", ph.Delete)

			r.Get("/notifications", nh.List)
			r.Get("/notifications/{id}", nh.GetByID)
			r.Delete("/notifications/{id}", nh.Delete)

			r.Post("/reconcile", rh.Trigger)
			r.Get("/reconcile/status", rh.Status)
		})
	})

	return r
}
