package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/gofiber/fiber/v2"
)

// PaymentRoutes is authenticated by the shared webhook secret, not a session.
func PaymentRoutes(api fiber.Router, h *handlers.PaymentHandler) {
	api.Post("/payments/webhook", h.HandleWebhook)
}
