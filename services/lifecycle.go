package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/metrics"
	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// transitions is the closed set of status changes ordinary callers can cause.
// Staff overrides bypass it and are audited separately.
var transitions = map[models.CouponStatus][]models.CouponStatus{
	models.CouponActive:  {models.CouponOverdue, models.CouponPaid, models.CouponVoided},
	models.CouponOverdue: {models.CouponPaid, models.CouponVoided},
}

func CanTransition(from, to models.CouponStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func IsTerminal(status models.CouponStatus) bool {
	return len(transitions[status]) == 0
}

func checkTransition(c *models.Coupon, to models.CouponStatus) error {
	if !CanTransition(c.Status, to) {
		return &TerminalStateError{CouponID: c.ID, Status: c.Status}
	}
	return nil
}

// Void cancels a coupon and releases its installments. Students may void their
// own coupons without a reason; staff must give one.
func (s *CouponService) Void(ctx context.Context, p Principal, couponID uuid.UUID, reason string) (*models.Coupon, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if p.IsStaff() && reason == "" {
		return nil, invalid("reason", "is required when staff void a coupon")
	}

	var voided *models.Coupon
	var from models.CouponStatus
	err := inTx(ctx, s.db, s.log, "coupon.void", func(tx *gorm.DB) error {
		coupon, err := lockCoupon(tx, couponID)
		if err != nil {
			return err
		}
		if !canSee(p, coupon.StudentID) {
			return ErrNotFound
		}
		if err := checkTransition(coupon, models.CouponVoided); err != nil {
			return err
		}
		from = coupon.Status

		now := s.now()
		if err := s.applyVoid(tx, coupon, p, reason, now); err != nil {
			return err
		}
		detail := fmt.Sprintf("coupon %s voided by %s", coupon.Number, p.Role)
		if reason != "" {
			detail += ": " + reason
		}
		if err := s.audit.Record(ctx, tx, AuditEntry{
			Actor:      &p,
			Action:     ActionCouponVoid,
			TargetType: "coupon",
			TargetID:   coupon.ID.String(),
			Detail:     detail,
			Metadata:   map[string]any{"from": string(from), "reason": reason},
		}); err != nil {
			return err
		}
		voided, err = loadCoupon(tx, coupon.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CouponTransitions.WithLabelValues(string(from), string(models.CouponVoided), "void").Inc()
	s.decorate(voided)
	s.log.Info("coupon voided",
		zap.String("coupon_id", voided.ID.String()),
		zap.String("actor_id", p.UserID.String()),
		zap.String("actor_role", string(p.Role)))
	s.events.Publish(CouponEvent{Type: EventCouponVoided, Coupon: voided})
	if p.IsStaff() && voided.Student != nil {
		s.notifier.Send(voided.Student.FullName, voided.Student.Email,
			fmt.Sprintf("Coupon %s has been voided", voided.Number),
			fmt.Sprintf("<h1>Coupon voided</h1><p>Your payment coupon <b>%s</b> for %s was voided by the billing office.</p><p><b>Reason:</b> %s</p><p>The installments it covered are available again to generate a new coupon.</p>",
				voided.Number, voided.AmountTotal.StringFixed(2), html.EscapeString(reason)))
	}
	return voided, nil
}

// applyVoid writes the void columns once and releases coverage.
func (s *CouponService) applyVoid(tx *gorm.DB, coupon *models.Coupon, p Principal, reason string, now time.Time) error {
	updates := map[string]any{
		"status":         models.CouponVoided,
		"voided_by_id":   p.UserID,
		"voided_by_role": p.Role,
		"voided_at":      now,
		"updated_at":     now,
		"document_url":   nil,
	}
	if reason != "" {
		updates["void_reason"] = reason
	} else {
		updates["void_reason"] = nil
	}
	if err := tx.Model(&models.Coupon{}).Where("id = ?", coupon.ID).Updates(updates).Error; err != nil {
		return err
	}
	return releaseCoverage(tx, coupon.ID, now)
}

func releaseCoverage(tx *gorm.DB, couponID uuid.UUID, now time.Time) error {
	var ids []uuid.UUID
	if err := tx.Model(&models.CouponInstallment{}).
		Where("coupon_id = ? AND released_at IS NULL", couponID).
		Pluck("installment_id", &ids).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.CouponInstallment{}).
		Where("coupon_id = ? AND released_at IS NULL", couponID).
		Update("released_at", now).Error; err != nil {
		return err
	}
	return releaseInstallments(tx, ids)
}

type OverrideInput struct {
	StatusID uuid.UUID
	Status   models.CouponStatus
	Reason   string
}

// Override forces a coupon into any status. It is staff only, bypasses the
// transition table and is audited with both statuses. Coverage stays
// consistent: leaving voided re-acquires the installments and fails with a
// ConflictError when another coupon holds any of them.
func (s *CouponService) Override(ctx context.Context, p Principal, couponID uuid.UUID, in OverrideInput) (*models.Coupon, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)

	var updated *models.Coupon
	var from, target models.CouponStatus
	err := inTx(ctx, s.db, s.log, "coupon.override", func(tx *gorm.DB) error {
		var err error
		target, err = resolveTargetStatus(tx, in)
		if err != nil {
			return err
		}
		coupon, err := lockCoupon(tx, couponID)
		if err != nil {
			return err
		}
		from = coupon.Status
		if from == target {
			return &TerminalStateError{CouponID: coupon.ID, Status: from, Override: true}
		}

		now := s.now()
		if err := s.applyOverride(tx, coupon, p, target, reason, now); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, AuditEntry{
			Actor:      &p,
			Action:     ActionCouponOverride,
			TargetType: "coupon",
			TargetID:   coupon.ID.String(),
			Detail:     fmt.Sprintf("coupon %s status overridden from %s to %s", coupon.Number, from, target),
			Metadata:   map[string]any{"from": string(from), "to": string(target), "reason": reason},
		}); err != nil {
			return err
		}
		updated, err = loadCoupon(tx, coupon.ID)
		return err
	})
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.decorate(conflict.Coupon)
		}
		return nil, err
	}

	metrics.CouponTransitions.WithLabelValues(string(from), string(target), "override").Inc()
	s.decorate(updated)
	s.log.Warn("coupon status overridden",
		zap.String("coupon_id", updated.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.String("actor_id", p.UserID.String()))
	s.events.Publish(CouponEvent{Type: EventCouponOverridden, Coupon: updated})
	if updated.Student != nil {
		s.notifier.Send(updated.Student.FullName, updated.Student.Email,
			fmt.Sprintf("Coupon %s status updated", updated.Number),
			fmt.Sprintf("<h1>Coupon update</h1><p>The billing office changed the status of coupon <b>%s</b> from %s to %s.</p>",
				updated.Number, from, target))
	}
	return updated, nil
}

func resolveTargetStatus(tx *gorm.DB, in OverrideInput) (models.CouponStatus, error) {
	if in.StatusID != uuid.Nil {
		var label models.StatusLabel
		if err := tx.Where("id = ?", in.StatusID).First(&label).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", invalid("status_id", "unknown coupon status")
			}
			return "", err
		}
		if !label.Code.Valid() {
			return "", invalid("status_id", "status label is not bound to a lifecycle status")
		}
		return label.Code, nil
	}
	if in.Status == "" {
		return "", invalid("status_id", "is required")
	}
	if !in.Status.Valid() {
		return "", invalid("status", "unknown coupon status")
	}
	return in.Status, nil
}

func (s *CouponService) applyOverride(tx *gorm.DB, coupon *models.Coupon, p Principal, target models.CouponStatus, reason string, now time.Time) error {
	var links []models.CouponInstallment
	if err := tx.Where("coupon_id = ?", coupon.ID).Order("position").Find(&links).Error; err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.InstallmentID)
	}

	if target == models.CouponVoided {
		if reason == "" {
			reason = "staff override"
		}
		return s.applyVoid(tx, coupon, p, reason, now)
	}

	updates := map[string]any{"status": target, "updated_at": now, "document_url": nil}

	if coupon.Status == models.CouponVoided {
		if _, err := lockInstallments(tx, ids); err != nil {
			return err
		}
		existing, err := coveringCoupon(tx, ids, coupon.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{Coupon: existing}
		}
		if err := tx.Model(&models.CouponInstallment{}).
			Where("coupon_id = ?", coupon.ID).
			Update("released_at", nil).Error; err != nil {
			return err
		}
		updates["void_reason"] = nil
		updates["voided_by_id"] = nil
		updates["voided_by_role"] = nil
		updates["voided_at"] = nil
	}

	switch {
	case target == models.CouponPaid:
		updates["paid_at"] = now
		if err := markInstallmentsPaid(tx, ids, now); err != nil {
			return err
		}
	case coupon.Status == models.CouponPaid:
		updates["paid_at"] = nil
		if err := releaseInstallments(tx, ids); err != nil {
			return err
		}
	}

	return tx.Model(&models.Coupon{}).Where("id = ?", coupon.ID).Updates(updates).Error
}

// MarkPaid accepts a settlement confirmation from a gateway callback.
func (s *CouponService) MarkPaid(ctx context.Context, couponID uuid.UUID, reference string) (*models.Coupon, error) {
	reference = strings.TrimSpace(reference)

	var paid *models.Coupon
	var from models.CouponStatus
	err := inTx(ctx, s.db, s.log, "coupon.paid", func(tx *gorm.DB) error {
		coupon, err := lockCoupon(tx, couponID)
		if err != nil {
			return err
		}
		if err := checkTransition(coupon, models.CouponPaid); err != nil {
			return err
		}
		from = coupon.Status

		now := s.now()
		var ids []uuid.UUID
		if err := tx.Model(&models.CouponInstallment{}).
			Where("coupon_id = ? AND released_at IS NULL", coupon.ID).
			Pluck("installment_id", &ids).Error; err != nil {
			return err
		}
		updates := map[string]any{"status": models.CouponPaid, "paid_at": now, "updated_at": now, "document_url": nil}
		if reference != "" {
			updates["payment_reference"] = reference
		}
		if err := tx.Model(&models.Coupon{}).Where("id = ?", coupon.ID).Updates(updates).Error; err != nil {
			return err
		}
		if err := markInstallmentsPaid(tx, ids, now); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, AuditEntry{
			Action:     ActionCouponPaid,
			TargetType: "coupon",
			TargetID:   coupon.ID.String(),
			Detail:     fmt.Sprintf("settlement received for coupon %s", coupon.Number),
			Metadata:   map[string]any{"from": string(from), "reference": reference},
		}); err != nil {
			return err
		}
		paid, err = loadCoupon(tx, coupon.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CouponTransitions.WithLabelValues(string(from), string(models.CouponPaid), "settlement").Inc()
	s.decorate(paid)
	s.log.Info("coupon paid", zap.String("coupon_id", paid.ID.String()), zap.String("reference", reference))
	s.events.Publish(CouponEvent{Type: EventCouponPaid, Coupon: paid})
	return paid, nil
}

type SweepResult struct {
	Coupons      int64
	Installments int64
}

// SweepOverdue materializes overdue state for coupons and installments whose
// due day has elapsed. Reads derive the same state lazily, so the sweep only
// keeps stored rows in step.
func (s *CouponService) SweepOverdue(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-24 * time.Hour)
	var result SweepResult
	err := inTx(ctx, s.db, s.log, "coupon.sweep_overdue", func(tx *gorm.DB) error {
		res := tx.Model(&models.Coupon{}).
			Where("status = ? AND due_date <= ?", models.CouponActive, cutoff).
			Updates(map[string]any{"status": models.CouponOverdue, "updated_at": s.now(), "document_url": nil})
		if res.Error != nil {
			return res.Error
		}
		result.Coupons = res.RowsAffected

		res = tx.Model(&models.Installment{}).
			Where("status = ? AND due_date <= ?", models.InstallmentPending, cutoff).
			Update("status", models.InstallmentOverdue)
		if res.Error != nil {
			return res.Error
		}
		result.Installments = res.RowsAffected
		return nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	metrics.OverdueMaterialized.WithLabelValues("coupon").Add(float64(result.Coupons))
	metrics.OverdueMaterialized.WithLabelValues("installment").Add(float64(result.Installments))
	if result.Coupons > 0 {
		metrics.CouponTransitions.WithLabelValues(string(models.CouponActive), string(models.CouponOverdue), "sweep").Add(float64(result.Coupons))
	}
	return result, nil
}
