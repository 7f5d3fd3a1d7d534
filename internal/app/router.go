package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gestcom-app/gestcom/internal/balance"
	"github.com/gestcom-app/gestcom/internal/billing"
	"github.com/gestcom-app/gestcom/internal/observability"
	"github.com/gestcom-app/gestcom/internal/payment"
	"github.com/gestcom-app/gestcom/jobs"
	"github.com/gestcom-app/gestcom/report"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Pool           *pgxpool.Pool
	BillingHandler *billing.Handler
	PaymentHandler *payment.Handler
	BalanceHandler *balance.Handler
	ReportHandler  *report.Handler
	JobsHandler    *jobs.Handler
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with gestcom defaults.
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
		if params.Pool != nil {
			if err := params.Pool.Ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/documents", func(r chi.Router) {
		params.BillingHandler.MountRoutes(r)
	})
	r.Route("/payments", func(r chi.Router) {
		params.PaymentHandler.MountRoutes(r)
	})
	r.Route("/partners", func(r chi.Router) {
		params.BalanceHandler.MountRoutes(r)
	})
	if params.ReportHandler != nil {
		r.Route("/reports", func(r chi.Router) {
			params.ReportHandler.MountRoutes(r)
		})
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobsHandler.MountRoutes(r)
		})
	}

	return r
}
