package handlers

import (
	"time"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InstallmentLine struct {
	Period  string          `json:"period" validate:"required,max=50"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate string          `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type RegisterInstallmentsRequest struct {
	StudentID    string            `json:"student_id" validate:"required,uuid"`
	Installments []InstallmentLine `json:"installments" validate:"required,min=1,dive"`
}

type InstallmentHandler struct {
	installments *services.InstallmentService
	log          *zap.Logger
}

func NewInstallmentHandler(installments *services.InstallmentService, log *zap.Logger) *InstallmentHandler {
	return &InstallmentHandler{installments: installments, log: log}
}

func (h *InstallmentHandler) ListPending(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var studentID uuid.UUID
	if raw := c.Query("student_id"); raw != "" {
		if studentID, err = uuid.Parse(raw); err != nil {
			return respondError(c, h.log, &services.ValidationError{Field: "student_id", Message: "must be a valid id"})
		}
	}
	installments, err := h.installments.ListPending(c.UserContext(), p, studentID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, installments)
}

func (h *InstallmentHandler) Register(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return respondError(c, h.log, err)
	}
	var req RegisterInstallmentsRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, h.log, err)
	}
	inputs := make([]services.InstallmentInput, 0, len(req.Installments))
	for _, line := range req.Installments {
		due, _ := time.Parse("2006-01-02", line.DueDate)
		inputs = append(inputs, services.InstallmentInput{Period: line.Period, Amount: line.Amount, DueDate: due})
	}
	created, err := h.installments.Register(c.UserContext(), p, uuid.MustParse(req.StudentID), inputs)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusCreated, created)
}
