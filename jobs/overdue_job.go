package jobs

import (
	"context"
	"time"

	"github.com/anjiri1684/tuition_coupons/services"
	"go.uber.org/zap"
)

// SweepOverdue materializes overdue coupons and installments.
func SweepOverdue(coupons *services.CouponService, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		result, err := coupons.SweepOverdue(ctx)
		if err != nil {
			log.Error("overdue sweep failed", zap.Error(err))
			return
		}
		if result.Coupons > 0 || result.Installments > 0 {
			log.Info("overdue sweep finished",
				zap.Int64("coupons", result.Coupons),
				zap.Int64("installments", result.Installments))
		}
	}
}

// PurgeIdempotency removes token records past the retention window.
func PurgeIdempotency(coupons *services.CouponService, retention time.Duration, log *zap.Logger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if _, err := coupons.PurgeIdempotency(ctx, retention); err != nil {
			log.Error("idempotency purge failed", zap.Error(err))
		}
	}
}
