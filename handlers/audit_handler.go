package handlers

import (
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditHandler struct {
	audit *services.AuditService
	log   *zap.Logger
}

func NewAuditHandler(audit *services.AuditService, log *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, log: log}
}

func (h *AuditHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	logs, err := h.audit.List(c.UserContext(), p, services.AuditFilter{
		Action: c.Query("action"),
		Search: c.Query("q"),
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, logs)
}
