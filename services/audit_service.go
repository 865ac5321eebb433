package services

import (
	"context"
	"strings"
	"time"

	"github.com/anjiri1684/tuition_coupons/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionCouponGenerate     = "coupon.generate"
	ActionCouponVoid         = "coupon.void"
	ActionCouponOverride     = "coupon.override"
	ActionCouponPaid         = "coupon.paid"
	ActionInstallmentImport  = "installment.import"
	ActionCatalogChange      = "catalog.change"
	ActionSessionLogin       = "session.login"
	ActionSessionLoginFailed = "session.login_failed"
	ActionSessionLogout      = "session.logout"
)

// AuditEntry is one append-only line of the action log.
type AuditEntry struct {
	Actor      *Principal
	Action     string
	TargetType string
	TargetID   string
	Detail     string
	Metadata   map[string]any
}

type AuditFilter struct {
	Action string
	Search string
	Limit  int
	Offset int
}

type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

func NewAuditService(db *gorm.DB, log *zap.Logger) *AuditService {
	return &AuditService{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes the entry with tx so it commits or rolls back together with
// the change it describes.
func (s *AuditService) Record(ctx context.Context, tx *gorm.DB, entry AuditEntry) error {
	row := models.AuditLog{
		ActorRole:  "system",
		Action:     entry.Action,
		TargetType: entry.TargetType,
		TargetID:   entry.TargetID,
		Detail:     entry.Detail,
		CreatedAt:  s.now(),
	}
	if entry.Actor != nil {
		actorID := entry.Actor.UserID
		row.ActorID = &actorID
		row.ActorRole = string(entry.Actor.Role)
	}
	if len(entry.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(&row).Error
}

func (s *AuditService) List(ctx context.Context, p Principal, filter AuditFilter) ([]models.AuditLog, error) {
	if err := requireStaff(p); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if action := strings.TrimSpace(filter.Action); action != "" {
		q = q.Where("action = ?", action)
	}
	if term := strings.ToLower(strings.TrimSpace(filter.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(detail) LIKE ? OR actor_id IN (?)", like,
			s.db.Model(&models.User{}).Select("id").Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like))
	}
	var logs []models.AuditLog
	err := q.Order("created_at DESC").Limit(pageSize(filter.Limit)).Offset(max(filter.Offset, 0)).Find(&logs).Error
	if err != nil {
		return nil, classify(err)
	}
	return logs, nil
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 200:
		return 200
	}
	return limit
}
