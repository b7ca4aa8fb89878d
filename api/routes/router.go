package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jordibadia/ferncart-backend/api/controllers"
	webhookcontrollers "github.com/jordibadia/ferncart-backend/api/controllers/webhooks"
	"github.com/jordibadia/ferncart-backend/api/middleware"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/internal/shipping"
	stripewebhook "github.com/jordibadia/ferncart-backend/internal/webhooks/stripe"
	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	pkgredis "github.com/jordibadia/ferncart-backend/pkg/redis"
	"github.com/jordibadia/ferncart-backend/pkg/stripe"
)

// RouterParams carries everything the HTTP surface needs. Grouping them keeps
// cmd/api readable as the dependency list grows.
type RouterParams struct {
	Config             *config.Config
	Logger             *logger.Logger
	Redis              *pkgredis.Client
	HealthDeps         map[string]controllers.Pinger
	CartService        cart.Service
	CheckoutService    controllers.CheckoutService
	ShippingResolver   *shipping.Resolver
	StripeClient       *stripe.Client
	StripeWebhookSvc   *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
	MetricsRegistry    *prometheus.Registry
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, params.HealthDeps))
	})

	if params.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(params.StripeWebhookSvc, params.StripeClient, params.StripeWebhookGuard, logg))
	})

	// Cart creation is the entry point: it issues the token the rest of the
	// surface requires.
	r.Post("/api/v1/cart", controllers.CartCreate(params.CartService, cfg.CartToken, logg))

	var idemStore pkgredis.IdempotencyStore
	if params.Redis != nil {
		idemStore = params.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CartToken(cfg.CartToken, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(params.CartService, logg))
			r.Put("/addresses", controllers.CartUpdateAddresses(params.CartService, logg))
			r.Put("/email", controllers.CartUpdateEmail(params.CartService, logg))
			r.Put("/shipping-method", controllers.CartSelectShipping(params.CartService, logg))
		})

		r.Post("/shipping/quotes", controllers.ShippingQuotes(params.CartService, params.ShippingResolver, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", controllers.Checkout(params.CheckoutService, logg))
			r.Post("/prepare", controllers.CheckoutPrepare(params.CheckoutService, logg))
			r.Post("/confirm", controllers.CheckoutConfirm(params.CheckoutService, logg))
			r.Post("/abandon", controllers.CheckoutAbandon(params.CheckoutService, logg))
		})
	})

	return r
}
