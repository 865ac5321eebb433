package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/gofiber/fiber/v2"
)

func CouponRoutes(api fiber.Router, h *handlers.CouponHandler, guard []fiber.Handler) {
	coupons := api.Group("/coupons", guard...)
	coupons.Post("", h.Generate)
	coupons.Get("", h.List)
	coupons.Get("/stats", middleware.StaffRequired(), h.Stats)
	coupons.Get("/:couponId", h.Get)
	coupons.Get("/:couponId/document", h.Document)
	coupons.Patch("/:couponId/void", h.Void)
	coupons.Patch("/:couponId/status", middleware.StaffRequired(), h.Override)
}
