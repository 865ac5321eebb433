package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentOverdue InstallmentStatus = "overdue"
	InstallmentPaid    InstallmentStatus = "paid"
)

type Installment struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	StudentID uuid.UUID         `gorm:"type:uuid;not null;index" json:"student_id"`
	Period    string            `gorm:"size:100;not null" json:"period"`
	Amount    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	DueDate   time.Time         `gorm:"not null;index" json:"due_date"`
	Status    InstallmentStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	PaidAt    *time.Time        `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (i *Installment) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// EffectiveStatus derives Overdue from the due date for anything not yet paid.
func (i Installment) EffectiveStatus(now time.Time) InstallmentStatus {
	if i.Status == InstallmentPaid {
		return InstallmentPaid
	}
	if PastDue(i.DueDate, now) {
		return InstallmentOverdue
	}
	return InstallmentPending
}

// PastDue reports whether the whole due day has elapsed.
func PastDue(dueDate, now time.Time) bool {
	return !now.Before(dueDate.Add(24 * time.Hour))
}
