package handlers

import (
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type GatewayRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type StatusLabelRequest struct {
	Code        string `json:"code" validate:"required,oneof=active paid overdue voided"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

type CatalogHandler struct {
	catalog *services.CatalogService
	log     *zap.Logger
}

func NewCatalogHandler(catalog *services.CatalogService, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, log: log}
}

func (h *CatalogHandler) ListGateways(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	gateways, err := h.catalog.ListGateways(c.UserContext(), p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, gateways)
}

func (h *CatalogHandler) GetGateway(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "gatewayId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	gateway, err := h.catalog.GetGateway(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, gateway)
}

func (h *CatalogHandler) CreateGateway(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req GatewayRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	gateway, err := h.catalog.CreateGateway(c.UserContext(), p, services.GatewayInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusCreated, gateway)
}

func (h *CatalogHandler) UpdateGateway(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "gatewayId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req GatewayRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	gateway, err := h.catalog.UpdateGateway(c.UserContext(), p, id, services.GatewayInput{
		Name: req.Name, Description: req.Description, IsActive: req.IsActive,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, gateway)
}

func (h *CatalogHandler) DeleteGateway(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "gatewayId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.catalog.DeleteGateway(c.UserContext(), p, id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Gateway deleted"})
}

func (h *CatalogHandler) ListStatuses(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	labels, err := h.catalog.ListStatusLabels(c.UserContext(), p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, labels)
}

func (h *CatalogHandler) GetStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "statusId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	label, err := h.catalog.GetStatusLabel(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, label)
}

func (h *CatalogHandler) CreateStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req StatusLabelRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	label, err := h.catalog.CreateStatusLabel(c.UserContext(), p, services.StatusLabelInput{
		Code: models.CouponStatus(req.Code), Name: req.Name, Description: req.Description,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusCreated, label)
}

func (h *CatalogHandler) UpdateStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "statusId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req StatusLabelRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	label, err := h.catalog.UpdateStatusLabel(c.UserContext(), p, id, services.StatusLabelInput{
		Code: models.CouponStatus(req.Code), Name: req.Name, Description: req.Description,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, label)
}

func (h *CatalogHandler) DeleteStatus(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "statusId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.catalog.DeleteStatusLabel(c.UserContext(), p, id); err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(fiber.Map{"status": "success", "message": "Status deleted"})
}
