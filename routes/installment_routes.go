package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/gofiber/fiber/v2"
)

func InstallmentRoutes(api fiber.Router, h *handlers.InstallmentHandler, guard []fiber.Handler) {
	installments := api.Group("/installments", guard...)
	installments.Get("/pending", h.ListPending)
	installments.Post("", middleware.StaffRequired(), h.Register)
}
