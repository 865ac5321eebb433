package services

import (
	"github.com/anjiri1684/tuition_coupons/models"
)

const (
	EventCouponCreated    = "coupon.created"
	EventCouponVoided     = "coupon.voided"
	EventCouponPaid       = "coupon.paid"
	EventCouponOverridden = "coupon.overridden"
)

// CouponEvent is pushed to connected clients after a commit. Clients replace
// their cached copy with Coupon rather than merging.
type CouponEvent struct {
	Type   string         `json:"type"`
	Coupon *models.Coupon `json:"coupon"`
}

type Publisher interface {
	Publish(event CouponEvent)
}

// Notifier delivers e-mail. Implementations must not block the caller.
type Notifier interface {
	Send(toName, toEmail, subject, htmlContent string)
}

type noopPublisher struct{}

func (noopPublisher) Publish(CouponEvent) {}

type noopNotifier struct{}

func (noopNotifier) Send(string, string, string, string) {}
