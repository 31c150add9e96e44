package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lucasvieira/planbook-backend/api/controllers"
	webhookcontrollers "github.com/lucasvieira/planbook-backend/api/controllers/webhooks"
	"github.com/lucasvieira/planbook-backend/api/middleware"
	bookingsvc "github.com/lucasvieira/planbook-backend/internal/booking"
	"github.com/lucasvieira/planbook-backend/pkg/config"
	"github.com/lucasvieira/planbook-backend/pkg/db"
	"github.com/lucasvieira/planbook-backend/pkg/logger"
	"github.com/lucasvieira/planbook-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	bookingService *bookingsvc.Service,
	paymentWebhookService webhookcontrollers.PaymentWebhookService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, cfg.Webhook.SigningSecret, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", controllers.CreateBooking(bookingService, logg))
			r.Get("/{reference}", controllers.GetBooking(bookingService, logg))
		})
		r.Get("/plans/{slug}/availability", controllers.PlanAvailability(bookingService, logg))
	})

	return r
}
