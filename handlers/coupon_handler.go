package handlers

import (
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

type GenerateCouponRequest struct {
	StudentID        string   `json:"student_id" validate:"omitempty,uuid"`
	InstallmentIDs   []string `json:"installment_ids" validate:"required,min=1,dive,uuid"`
	IdempotencyToken string   `json:"idempotency_token" validate:"required,max=255"`
	GatewayID        string   `json:"gateway_id" validate:"required,uuid"`
}

type VoidCouponRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type OverrideStatusRequest struct {
	StatusID string `json:"status_id" validate:"omitempty,uuid"`
	Status   string `json:"status" validate:"omitempty,oneof=active paid overdue voided"`
	Reason   string `json:"reason" validate:"max=500"`
}

type CouponHandler struct {
	coupons   *services.CouponService
	documents *services.DocumentService
	log       *zap.Logger
}

func NewCouponHandler(coupons *services.CouponService, documents *services.DocumentService, log *zap.Logger) *CouponHandler {
	return &CouponHandler{coupons: coupons, documents: documents, log: log}
}

// Generate answers 201 for a new coupon and 200 for a replayed token.
func (h *CouponHandler) Generate(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req GenerateCouponRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, h.log, &services.ValidationError{Field: "body", Message: "cannot parse JSON"})
	}
	if req.IdempotencyToken == "" {
		req.IdempotencyToken = c.Get(idempotencyHeader)
	}
	if err := validateStruct(&req); err != nil {
		return respondError(c, h.log, err)
	}

	in := services.GenerateInput{
		IdempotencyToken: req.IdempotencyToken,
		GatewayID:        uuid.MustParse(req.GatewayID),
	}
	if req.StudentID != "" {
		in.StudentID = uuid.MustParse(req.StudentID)
	}
	for _, raw := range req.InstallmentIDs {
		in.InstallmentIDs = append(in.InstallmentIDs, uuid.MustParse(raw))
	}

	coupon, outcome, err := h.coupons.Generate(c.UserContext(), p, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	status := fiber.StatusCreated
	if outcome == services.OutcomeReplayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"status": "success", "outcome": outcome, "data": coupon})
}

func (h *CouponHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	filter := services.CouponFilter{
		Scope:  c.Query("scope"),
		Status: models.CouponStatus(c.Query("status")),
		Search: c.Query("q"),
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}
	if raw := c.Query("student_id"); raw != "" {
		if filter.StudentID, err = uuid.Parse(raw); err != nil {
			return respondError(c, h.log, &services.ValidationError{Field: "student_id", Message: "must be a valid id"})
		}
	}
	if filter.Scope != "" && filter.Scope != services.ScopeOwn && filter.Scope != services.ScopeAll {
		return respondError(c, h.log, &services.ValidationError{Field: "scope", Message: "must be one of own all"})
	}
	coupons, err := h.coupons.List(c.UserContext(), p, filter)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, coupons)
}

func (h *CouponHandler) Stats(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	stats, err := h.coupons.Stats(c.UserContext(), p)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, stats)
}

func (h *CouponHandler) Get(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "couponId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	coupon, err := h.coupons.Get(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, coupon)
}

func (h *CouponHandler) Void(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "couponId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req VoidCouponRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, h.log, err)
		}
	}
	coupon, err := h.coupons.Void(c.UserContext(), p, id, req.Reason)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, coupon)
}

func (h *CouponHandler) Override(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "couponId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req OverrideStatusRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	in := services.OverrideInput{Status: models.CouponStatus(req.Status), Reason: req.Reason}
	if req.StatusID != "" {
		in.StatusID = uuid.MustParse(req.StatusID)
	}
	coupon, err := h.coupons.Override(c.UserContext(), p, id, in)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, coupon)
}

// Document redirects to the stored PDF or streams a freshly rendered one.
func (h *CouponHandler) Document(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	id, err := paramID(c, "couponId")
	if err != nil {
		return respondError(c, h.log, err)
	}
	doc, err := h.documents.Document(c.UserContext(), p, id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if len(doc.PDF) == 0 {
		return c.Redirect(doc.URL, fiber.StatusFound)
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="coupon-`+id.String()+`.pdf"`)
	return c.Send(doc.PDF)
}
