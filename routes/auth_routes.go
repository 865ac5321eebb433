package routes

import (
	"github.com/anjiri1684/tuition_coupons/handlers"
	"github.com/gofiber/fiber/v2"
)

func AuthRoutes(api fiber.Router, h *handlers.AuthHandler, guard []fiber.Handler) {
	auth := api.Group("/auth")
	auth.Post("/login", h.Login)
	auth.Post("/logout", append(guard, h.Logout)...)
	auth.Get("/me", append(guard, h.Me)...)
}
