package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusLabel is the staff-managed display entry for one lifecycle status.
type StatusLabel struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Code        CouponStatus `gorm:"size:20;not null;uniqueIndex" json:"code"`
	Name        string       `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description string       `gorm:"type:text" json:"description"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (StatusLabel) TableName() string { return "coupon_statuses" }

func (l *StatusLabel) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
