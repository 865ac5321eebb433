package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func RealtimeRoutes(api fiber.Router, h *handlers.RealtimeHandler) {
	api.Use("/ws", h.Upgrade)
	api.Get("/ws/coupons", websocket.New(h.Serve))
}
