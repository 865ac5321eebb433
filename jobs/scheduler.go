package jobs

import (
	"time"

	"github.com/anjiri1684/tuition_coupons/services"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Schedule registers the background jobs on c. Specs use the standard
// five-field cron format.
func Schedule(c *cron.Cron, coupons *services.CouponService, retention time.Duration, log *zap.Logger) error {
	entries := []struct {
		spec string
		name string
		job  func()
	}{
		{"*/5 * * * *", "sweep_overdue", SweepOverdue(coupons, log)},
		{"17 * * * *", "purge_idempotency", PurgeIdempotency(coupons, retention, log)},
		{"0 8 * * *", "due_reminders", SendDueReminders(coupons, log)},
	}
	for _, e := range entries {
		if _, err := c.AddFunc(e.spec, e.job); err != nil {
			return err
		}
		log.Info("job scheduled", zap.String("job", e.name), zap.String("spec", e.spec))
	}
	return nil
}
