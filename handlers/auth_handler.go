package handlers

import (
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthHandler struct {
	sessions *services.SessionService
	log      *zap.Logger
}

func NewAuthHandler(sessions *services.SessionService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, log: log}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	result, err := h.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"status":     "success",
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       result.User,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.sessions.Logout(c.UserContext(), p); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Logged out"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "success", "data": fiber.Map{"id": p.UserID, "role": p.Role}})
}
