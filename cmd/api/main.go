package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jordibadia/ferncart-backend/api/controllers"
	"github.com/jordibadia/ferncart-backend/api/routes"
	"github.com/jordibadia/ferncart-backend/internal/cart"
	"github.com/jordibadia/ferncart-backend/internal/checkout"
	"github.com/jordibadia/ferncart-backend/internal/orders"
	"github.com/jordibadia/ferncart-backend/internal/payment"
	"github.com/jordibadia/ferncart-backend/internal/pricing"
	"github.com/jordibadia/ferncart-backend/internal/shipping"
	stripewebhook "github.com/jordibadia/ferncart-backend/internal/webhooks/stripe"
	"github.com/jordibadia/ferncart-backend/pkg/config"
	"github.com/jordibadia/ferncart-backend/pkg/db"
	"github.com/jordibadia/ferncart-backend/pkg/logger"
	"github.com/jordibadia/ferncart-backend/pkg/metrics"
	"github.com/jordibadia/ferncart-backend/pkg/migrate"
	"github.com/jordibadia/ferncart-backend/pkg/outbox"
	"github.com/jordibadia/ferncart-backend/pkg/rates"
	"github.com/jordibadia/ferncart-backend/pkg/redis"
	"github.com/jordibadia/ferncart-backend/pkg/stripe"
)

const webhookGuardTTL = 72 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	ratesClient, err := rates.NewClient(cfg.Carrier.APIKey,
		rates.WithBaseURL(cfg.Carrier.BaseURL),
		rates.WithHTTPClient(&http.Client{Timeout: cfg.Carrier.Timeout}),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap carrier rates client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	cartRepo := cart.NewRepository(dbClient.DB())
	sessionRepo := payment.NewSessionRepository(dbClient.DB())
	optionRepo := shipping.NewOptionRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)

	cartService, err := cart.NewService(cartRepo, sessionRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	sequencer, err := cart.NewSequencer(cartService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create cart sequencer", err)
		os.Exit(1)
	}

	resolver, err := shipping.NewResolver(ratesClient, optionRepo, cfg.Checkout, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping resolver", err)
		os.Exit(1)
	}

	pricingService, err := pricing.NewService(cartRepo, cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing service", err)
		os.Exit(1)
	}

	retrier, err := pricing.NewRetrier(pricingService, cfg.Checkout, logg, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create price sync retrier", err)
		os.Exit(1)
	}

	sessionManager, err := payment.NewSessionManager(sessionRepo, stripeClient, redisClient, cfg.Checkout, logg, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment session manager", err)
		os.Exit(1)
	}

	confirmations, err := payment.NewConfirmationHandler(sessionRepo, sessionManager, logg, checkoutMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation handler", err)
		os.Exit(1)
	}

	finalizer, err := orders.NewFinalizer(dbClient, ordersRepo, cartRepo, sessionManager, outboxService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order finalizer", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:         cartService,
		Sequencer:     sequencer,
		Resolver:      resolver,
		Retrier:       retrier,
		Sessions:      sessionManager,
		SessionReader: sessionRepo,
		Confirmations: confirmations,
		Gateway:       stripeClient,
		Orders:        finalizer,
		Guard:         checkout.NewGuard(),
		Logger:        logg,
		Metrics:       checkoutMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Sessions:  sessionRepo,
		Finalizer: finalizer,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "stripe_event")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			HealthDeps: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			CartService:        cartService,
			CheckoutService:    checkoutService,
			ShippingResolver:   resolver,
			StripeClient:       stripeClient,
			StripeWebhookSvc:   webhookService,
			StripeWebhookGuard: webhookGuard,
			MetricsRegistry:    registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
