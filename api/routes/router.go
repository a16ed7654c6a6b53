package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/payments"
	promocontrollers "github.com/angelmondragon/storefront-backend/api/controllers/promos"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/internal/promos"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type dlqRepository interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	promoService promos.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	dlqRepo dlqRepository,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	promoPolicy := middleware.NewRateLimitPolicy("promo", cfg.RateLimit.Window, cfg.RateLimit.PromoLimit)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.Window, cfg.RateLimit.CheckoutLimit)
	adminOnly := middleware.RequireRole(enums.UserRoleAdmin, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		// Stripe authenticates with its signature header, not a bearer token.
		r.Post("/payments/webhook", webhookcontrollers.StripeWebhook(stripeWebhookService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Use(middleware.Idempotency(redisClient, logg))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.Fetch(cartService, logg))
				r.Delete("/", cartcontrollers.Clear(cartService, logg))
				r.Post("/items", cartcontrollers.AddItem(cartService, logg))
				r.Put("/items/{productId}", cartcontrollers.UpdateQuantity(cartService, logg))
				r.Delete("/items/{productId}", cartcontrollers.RemoveItem(cartService, logg))
				r.With(middleware.RateLimit(promoPolicy, redisClient, logg)).Post("/promo", cartcontrollers.ApplyPromo(cartService, logg))
				r.Delete("/promo", cartcontrollers.RemovePromo(cartService, logg))

				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimit(checkoutPolicy, redisClient, logg))
					r.Post("/checkout", checkoutcontrollers.Cart(checkoutService, logg))
					r.Post("/checkout/direct", checkoutcontrollers.Direct(checkoutService, logg))
				})

				r.Route("/promo-codes", func(r chi.Router) {
					r.Get("/active", promocontrollers.Active(promoService, logg))
					r.Get("/{code}", promocontrollers.Get(promoService, logg))
					r.Group(func(r chi.Router) {
						r.Use(adminOnly)
						r.Get("/", promocontrollers.List(promoService, logg))
						r.Post("/", promocontrollers.Create(promoService, logg))
						r.Put("/{code}", promocontrollers.Update(promoService, logg))
						r.Delete("/{code}", promocontrollers.Delete(promoService, logg))
					})
				})
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(ordersService, logg))
				r.Get("/saved-addresses", ordercontrollers.SavedAddresses(ordersService, logg))
				r.Get("/{id}", ordercontrollers.Detail(ordersService, logg))
				r.With(adminOnly).Patch("/{id}/status", ordercontrollers.UpdateStatus(ordersService, logg))
			})

			r.Post("/payments/initiate", paymentcontrollers.Initiate(paymentsService, logg))
			r.Post("/payments/verify/{orderId}", paymentcontrollers.Verify(paymentsService, logg))

			r.Route("/admin", func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/outbox/dlq", controllers.AdminOutboxDLQ(dlqRepo, logg))
			})
		})
	})

	return r
}
