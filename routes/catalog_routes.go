package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/anjiri1684/tuition_coupons/middleware"
	"github.com/gofiber/fiber/v2"
)

func CatalogRoutes(api fiber.Router, h *handlers.CatalogHandler, guard []fiber.Handler) {
	gateways := api.Group("/gateways", guard...)
	gateways.Get("", h.ListGateways)
	gateways.Get("/:gatewayId", h.GetGateway)
	gateways.Post("", middleware.StaffRequired(), h.CreateGateway)
	gateways.Put("/:gatewayId", middleware.StaffRequired(), h.UpdateGateway)
	gateways.Delete("/:gatewayId", middleware.StaffRequired(), h.DeleteGateway)

	statuses := api.Group("/coupon-statuses", guard...)
	statuses.Get("", h.ListStatuses)
	statuses.Get("/:statusId", h.GetStatus)
	statuses.Post("", middleware.StaffRequired(), h.CreateStatus)
	statuses.Put("/:statusId", middleware.StaffRequired(), h.UpdateStatus)
	statuses.Delete("/:statusId", middleware.StaffRequired(), h.DeleteStatus)
}
