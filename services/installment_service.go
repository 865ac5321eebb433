package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InstallmentInput struct {
	Period  string
	Amount  decimal.Decimal
	DueDate time.Time
}

type InstallmentService struct {
	db    *gorm.DB
	log   *zap.Logger
	audit *AuditService
	now   func() time.Time
}

func NewInstallmentService(db *gorm.DB, log *zap.Logger, audit *AuditService) *InstallmentService {
	return &InstallmentService{db: db, log: log, audit: audit, now: func() time.Time { return time.Now().UTC() }}
}

// ListPending returns the student's unpaid installments that no coupon covers,
// with Overdue derived from the due date.
func (s *InstallmentService) ListPending(ctx context.Context, p Principal, studentID uuid.UUID) ([]models.Installment, error) {
	target, err := studentScope(p, studentID)
	if err != nil {
		return nil, err
	}

	var installments []models.Installment
	err = s.db.WithContext(ctx).
		Where("student_id = ? AND status IN ?", target, []models.InstallmentStatus{models.InstallmentPending, models.InstallmentOverdue}).
		Where("NOT EXISTS (SELECT 1 FROM coupon_installments ci WHERE ci.installment_id = installments.id AND ci.released_at IS NULL)").
		Order("due_date ASC, period ASC").
		Find(&installments).Error
	if err != nil {
		return nil, classify(err)
	}

	now := s.now()
	for i := range installments {
		installments[i].Status = installments[i].EffectiveStatus(now)
	}
	return installments, nil
}

// Register imports obligations computed by the institution's billing system.
func (s *InstallmentService) Register(ctx context.Context, p Principal, studentID uuid.UUID, inputs []InstallmentInput) ([]models.Installment, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	if studentID == uuid.Nil {
		return nil, invalid("student_id", "is required")
	}
	if len(inputs) == 0 {
		return nil, invalid("installments", "at least one installment is required")
	}

	installments := make([]models.Installment, 0, len(inputs))
	for _, in := range inputs {
		period := strings.TrimSpace(in.Period)
		if period == "" {
			return nil, invalid("period", "is required")
		}
		if !in.Amount.IsPositive() {
			return nil, invalid("amount", "must be greater than zero")
		}
		if in.DueDate.IsZero() {
			return nil, invalid("due_date", "is required")
		}
		due := in.DueDate.UTC()
		installments = append(installments, models.Installment{
			StudentID: studentID,
			Period:    period,
			Amount:    in.Amount.Round(2),
			DueDate:   time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC),
			Status:    models.InstallmentPending,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var student models.User
		if err := tx.Where("id = ? AND role = ?", studentID, models.RoleStudent).First(&student).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return invalid("student_id", "unknown student")
			}
			return err
		}
		if err := tx.Create(&installments).Error; err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, AuditEntry{
			Actor:      &p,
			Action:     ActionInstallmentImport,
			TargetType: "student",
			TargetID:   studentID.String(),
			Detail:     "imported installments for " + student.FullName,
			Metadata:   map[string]any{"count": len(installments)},
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	s.log.Info("installments registered", zap.String("student_id", studentID.String()), zap.Int("count", len(installments)))
	return installments, nil
}

// releaseInstallments puts installments freed by a void back to Pending.
// Overdue is derived again on the next read.
func releaseInstallments(tx *gorm.DB, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Model(&models.Installment{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": models.InstallmentPending, "paid_at": nil}).Error
}

func markInstallmentsPaid(tx *gorm.DB, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Model(&models.Installment{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": models.InstallmentPaid, "paid_at": at}).Error
}
