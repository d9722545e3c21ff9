package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/loyalty-backend/api/controllers"
	"github.com/angelmondragon/loyalty-backend/api/middleware"
	"github.com/angelmondragon/loyalty-backend/internal/loyalty"
	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/loyalty-backend/pkg/redis"
)

// RouterParams groups the dependencies the HTTP surface needs.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	Loyalty      loyalty.Service
	Redis        pkgredis.IdempotencyStore
	Dependencies map[string]controllers.Pinger
	Metrics      prometheus.Gatherer
}

// NewRouter assembles the loyalty API.
//
// Member-facing routes live under /api/v1/loyalty behind bearer auth;
// the earn ingestion route under /api/internal/v1 is reserved for
// sibling backend services holding the shared secret.
func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.Dependencies))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/loyalty", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Get("/summary", controllers.LoyaltySummary(params.Loyalty, logg))
		r.Get("/history", controllers.LoyaltyHistory(params.Loyalty, logg))
		r.Get("/rewards", controllers.LoyaltyRewards(params.Loyalty, logg))
		r.Post("/redeem", controllers.LoyaltyRedeem(params.Loyalty, logg))
	})

	r.Route("/api/internal/v1", func(r chi.Router) {
		r.Use(middleware.InternalAuth(cfg.InternalAPI, logg))
		r.Use(middleware.Idempotency(params.Redis, logg))

		r.Post("/earn", controllers.InternalEarn(params.Loyalty, logg))
	})

	return r
}
