package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    *uuid.UUID        `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	ActorRole  string            `gorm:"size:20;not null" json:"actor_role"`
	Action     string            `gorm:"size:50;not null;index" json:"action"`
	TargetType string            `gorm:"size:50;not null" json:"target_type"`
	TargetID   string            `gorm:"size:64;index" json:"target_id"`
	Detail     string            `gorm:"type:text" json:"detail"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
