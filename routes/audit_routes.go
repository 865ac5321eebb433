package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/gofiber/fiber/v2"
)

func AuditRoutes(api fiber.Router, h *handlers.AuditHandler, guard []fiber.Handler) {
	audit := api.Group("/audit-logs", append(guard, middleware.StaffRequired())...)
	audit.Get("", h.List)
}
