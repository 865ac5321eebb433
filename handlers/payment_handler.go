package handlers

import (
	"crypto/subtle"
	"errors"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const webhookSecretHeader = "X-Webhook-Secret"

// SettlementWebhookPayload is posted by a payment gateway once it has
// collected (or failed to collect) a coupon.
type SettlementWebhookPayload struct {
	CouponID   string `json:"coupon_id" validate:"required,uuid"`
	Reference  string `json:"reference" validate:"max=255"`
	ResultCode int    `json:"result_code"`
	ResultDesc string `json:"result_desc"`
}

type PaymentHandler struct {
	coupons *services.CouponService
	secret  string
	log     *zap.Logger
}

func NewPaymentHandler(coupons *services.CouponService, secret string, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{coupons: coupons, secret: secret, log: log}
}

func (h *PaymentHandler) HandleWebhook(c *fiber.Ctx) error {
	given := c.Get(webhookSecretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(errorBody("unauthorized", "Invalid webhook secret"))
	}

	var payload SettlementWebhookPayload
	if err := parseBody(c, &payload); err != nil {
		return respondError(c, h.log, err)
	}
	couponID := uuid.MustParse(payload.CouponID)
	h.log.Info("received settlement webhook",
		zap.String("coupon_id", payload.CouponID),
		zap.String("reference", payload.Reference),
		zap.Int("result_code", payload.ResultCode))

	if payload.ResultCode != 0 {
		return c.JSON(fiber.Map{"status": "success", "message": "Acknowledged failed payment"})
	}

	coupon, err := h.coupons.MarkPaid(c.UserContext(), couponID, payload.Reference)
	if err != nil {
		var terminal *services.TerminalStateError
		if errors.As(err, &terminal) && terminal.Status == models.CouponPaid {
			return c.JSON(fiber.Map{"status": "success", "message": "Webhook already processed"})
		}
		return respondError(c, h.log, err)
	}
	return success(c, fiber.StatusOK, coupon)
}
