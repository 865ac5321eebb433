package models

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord binds a client token to the one coupon it produced.
type IdempotencyRecord struct {
	Token     string    `gorm:"size:255;primaryKey"`
	StudentID uuid.UUID `gorm:"type:uuid;not null"`
	CouponID  uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"not null;index"`
}
