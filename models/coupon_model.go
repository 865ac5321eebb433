package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CouponStatus string

const (
	CouponActive  CouponStatus = "active"
	CouponPaid    CouponStatus = "paid"
	CouponOverdue CouponStatus = "overdue"
	CouponVoided  CouponStatus = "voided"
)

var CouponStatuses = []CouponStatus{CouponActive, CouponPaid, CouponOverdue, CouponVoided}

func (s CouponStatus) Valid() bool {
	for _, known := range CouponStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// HoldsCoverage reports whether a coupon in this status blocks its installments
// from being put on another coupon.
func (s CouponStatus) HoldsCoverage() bool {
	return s == CouponActive || s == CouponOverdue || s == CouponPaid
}

type Coupon struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Number      string          `gorm:"size:12;not null;uniqueIndex" json:"number"`
	StudentID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	GatewayID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"gateway_id"`
	AmountTotal decimal.Decimal `gorm:"type:numeric(12,2);not null;<-:create" json:"amount_total"`
	Status      CouponStatus    `gorm:"size:20;not null;index" json:"status"`
	DueDate     time.Time       `gorm:"not null;index" json:"due_date"`

	PaidAt           *time.Time `json:"paid_at,omitempty"`
	PaymentReference *string    `gorm:"size:255" json:"payment_reference,omitempty"`

	VoidReason   *string    `gorm:"type:text" json:"void_reason,omitempty"`
	VoidedByID   *uuid.UUID `gorm:"type:uuid" json:"voided_by_id,omitempty"`
	VoidedByRole *Role      `gorm:"size:20" json:"voided_by_role,omitempty"`
	VoidedAt     *time.Time `json:"voided_at,omitempty"`
	DocumentURL  *string    `gorm:"size:512" json:"document_url,omitempty"`

	Student      *User               `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Gateway      Gateway             `gorm:"foreignKey:GatewayID" json:"gateway"`
	Installments []CouponInstallment `gorm:"foreignKey:CouponID" json:"installments"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Coupon) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// EffectiveStatus reports an active coupon whose due day has elapsed as overdue.
func (c Coupon) EffectiveStatus(now time.Time) CouponStatus {
	if c.Status == CouponActive && PastDue(c.DueDate, now) {
		return CouponOverdue
	}
	return c.Status
}

func (c Coupon) InstallmentIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Installments))
	for _, link := range c.Installments {
		ids = append(ids, link.InstallmentID)
	}
	return ids
}

// CouponInstallment links a coupon to one installment. Rows with a nil
// ReleasedAt are unique per installment.
type CouponInstallment struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"-"`
	CouponID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"coupon_id"`
	InstallmentID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_coupon_installments_covering,where:released_at IS NULL" json:"installment_id"`
	Position      int        `gorm:"not null" json:"position"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`

	Installment Installment `gorm:"foreignKey:InstallmentID" json:"installment"`
}

func (l *CouponInstallment) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
