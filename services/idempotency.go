package services

import (
	"context"
	"time"

	"github.com/anjiri1684/tuition_coupons/metrics"
	"github.com/anjiri1684/tuition_coupons/models"
	"go.uber.org/zap"
)

// PurgeIdempotency deletes token records older than the retention window.
// A purged token no longer replays; a retry after that creates a new coupon
// or reports a conflict if the first one still covers the installments.
func (s *CouponService) PurgeIdempotency(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, invalid("retention", "must be positive")
	}
	cutoff := s.now().Add(-retention)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.IdempotencyRecord{})
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	metrics.IdempotencyPurged.Add(float64(res.RowsAffected))
	if res.RowsAffected > 0 {
		s.log.Info("idempotency records purged", zap.Int64("count", res.RowsAffected), zap.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}
