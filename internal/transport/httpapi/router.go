package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bgshop/internal/metrics"
)

// NewRouter собирает маршруты API.
// Webhook платёжного шлюза обходит аутентификацию: его подлинность проверяет подпись.
func NewRouter(h *Handler, auth *Authenticator, logger *log.Entry, m *metrics.ShopMetrics) http.Handler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog(logger, m))
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/webhook", h.paymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Identify)
			r.Use(Session)

			r.Get("/basket", h.getBasket)
			r.Post("/basket", h.addToBasket)
			r.Delete("/basket", h.removeFromBasket)

			r.Group(func(r chi.Router) {
				r.Use(RequireUser)

				r.Post("/sign-in", h.signIn)
				r.Get("/orders", h.listOrders)
				r.Post("/orders", h.submitOrder)
				r.Get("/orders/{id}", h.getOrder)
				r.Post("/orders/{id}", h.confirmOrder)
				r.Post("/payment/{id}", h.initiatePayment)
			})
		})
	})

	return r
}
