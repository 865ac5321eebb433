package jobs

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/anjiri1684/tuition_coupons/services"
	"go.uber.org/zap"
)

// SendDueReminders e-mails students whose active coupons must be paid today.
// It is scheduled once a day.
func SendDueReminders(coupons *services.CouponService, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		due, err := coupons.DueWithin(ctx, 24*time.Hour)
		if err != nil {
			log.Error("error checking for coupons due today", zap.Error(err))
			return
		}
		for _, coupon := range due {
			if coupon.Student == nil {
				continue
			}
			subject := fmt.Sprintf("Reminder: coupon %s is due today", coupon.Number)
			body := fmt.Sprintf(
				"<h1>Payment reminder</h1><p>Hi %s,</p><p>Your coupon <b>%s</b> for %s through %s can be paid until the end of today.</p>",
				html.EscapeString(coupon.Student.FullName), coupon.Number, coupon.AmountTotal.StringFixed(2), html.EscapeString(coupon.Gateway.Name),
			)
			coupons.Notify(coupon.Student.FullName, coupon.Student.Email, subject, body)
		}
		if len(due) > 0 {
			log.Info("due reminders sent", zap.Int("count", len(due)))
		}
	}
}
