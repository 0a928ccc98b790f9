package rest

import (
	"log/slog"

	"github.com/go-chi/chi"

	"github.com/carnimore/checkout/internal/order"
	"github.com/carnimore/checkout/internal/payment"
	"github.com/carnimore/checkout/internal/transport/middleware"
	"github.com/carnimore/checkout/internal/transport/swagger"
)

// Routes bundles what RegisterAllRoutes mounts. Nil handlers leave their
// routes unmounted.
type Routes struct {
	Payment         *payment.Handler
	Orders          *order.Handler
	Tokens          *middleware.TokenVerifier
	PostbackLimiter *middleware.RateLimiter
	Health          *HealthHandler
}

func RegisterAllRoutes(router *chi.Mux, routes Routes, logger *slog.Logger) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", swagger.DocumentHandler)
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		if routes.Health != nil {
			r.Get("/health", routes.Health.healthCheckHandler)
			r.Get("/ping", routes.Health.pingHandler)
		}

		if routes.Payment != nil {
			r.Post("/payments/charge", routes.Payment.Charge)
			r.Get("/orders/{orderID}/status", routes.Payment.Status)

			r.Group(func(pr chi.Router) {
				if routes.PostbackLimiter != nil {
					pr.Use(routes.PostbackLimiter.Middleware)
				}
				pr.Post("/payments/postback", routes.Payment.Postback)
			})
		}

		if routes.Orders != nil && routes.Tokens != nil {
			r.Route("/admin", func(ar chi.Router) {
				ar.Use(routes.Tokens.RequireAdmin)
				ar.Get("/orders", routes.Orders.ListOrders)
				ar.Get("/orders/stats", routes.Orders.Stats)
			})
		}
	})
}
