package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/health"
	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/middleware"
)

// ServiceName labels metrics and spans emitted by the HTTP layer.
const ServiceName = "cart"

// RouterConfig carries the HTTP-facing knobs.
type RouterConfig struct {
	CORS           middleware.CORSConfig
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter creates a chi router with all cart routes registered.
func NewRouter(
	sessions Sessions,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	cartHandler := NewCartHandler(sessions, logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.Session())
		r.Use(middleware.RequestLogger(logger))
		if cfg.RateLimitRPS > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst, logger))
		}

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Get("/summary", cartHandler.GetSummary)
		r.Post("/drawer/toggle", cartHandler.ToggleDrawer)

		r.Post("/items", cartHandler.AddItem)
		r.Put("/items/{productId}", cartHandler.UpdateItemQuantity)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)

		r.Post("/checkout", cartHandler.BeginCheckout)
		r.Post("/checkout/complete", cartHandler.CompleteCheckout)
	})

	return r
}
