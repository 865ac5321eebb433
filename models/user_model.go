package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleStaff
}

type User struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName   string    `gorm:"size:255;not null" json:"full_name"`
	Email      string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Password   string    `gorm:"not null" json:"-"`
	Role       Role      `gorm:"size:20;not null;default:'student'" json:"role"`
	NationalID *string   `gorm:"size:20;index" json:"national_id,omitempty"`
	FileNumber *string   `gorm:"size:20;index" json:"file_number,omitempty"`
	IsActive   bool      `gorm:"not null" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
